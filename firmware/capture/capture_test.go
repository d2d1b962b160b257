/*
Copyright (c) 2019-2021 Andreas T Jonsson

This software is provided 'as-is', without any express or implied
warranty. In no event will the authors be held liable for any damages
arising from the use of this software.

Permission is granted to anyone to use this software for any purpose,
including commercial applications, and to alter it and redistribute it
freely, subject to the following restrictions:

1. The origin of this software must not be misrepresented; you must not
   claim that you wrote the original software. If you use this software
   in a product, an acknowledgment in the product documentation would be
   appreciated but is not required.
2. Altered source versions must be plainly marked as such, and must not be
   misrepresented as being the original software.
3. This notice may not be removed or altered from any source distribution.
*/

package capture

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/processor"
)

func TestEvent(t *testing.T) {
	e := MakeEvent(0x0015, 0xAA, Write)
	if e.String() != "W:0015:aa" {
		t.Errorf("got %s", e)
	}
	if e.Address() != 0x15 || e.Data() != 0xAA || e.Kind() != Write {
		t.Errorf("unexpected fields in %08x", uint32(e))
	}
	if MakeEvent(0xFFFF, 0, Unknown).String() != "X:ffff:00" {
		t.Error("unknown kind should render as X")
	}
	if Event(0xFFFF).Kind() != None || Read.String() != "R" {
		t.Error("kind decoding failed")
	}
}

func TestBitmap(t *testing.T) {
	var b Bitmap

	b.Enable(0x1000, 0x10FF)
	b.Enable(0xFFF0, 0xFFFF)
	b.Disable(0x1080, 0x108F)
	b.Enable(0x20, 0x10) // Inverted, ignored.

	want := []Range{{0x1000, 0x107F}, {0x1090, 0x10FF}, {0xFFF0, 0xFFFF}}
	got := b.Ranges(0, 0xFFFF)
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d: got %v, want %v", i, got[i], want[i])
		}
	}

	if r := b.Ranges(0x1050, 0x1060); len(r) != 1 || r[0] != (Range{0x1050, 0x1060}) {
		t.Errorf("clipped ranges: %v", r)
	}

	t.Run("Layout", func(t *testing.T) {
		var b Bitmap
		b.Enable(9, 9)
		buf := b.Bytes()
		if len(buf) != BitmapSize || buf[1] != 0x02 {
			t.Errorf("address 9 should be bit 1 of byte 1, got % x", buf[:2])
		}

		var c Bitmap
		c.Load(buf)
		if !c.Watched(9) || c.Watched(8) {
			t.Error("load did not restore the bitmap")
		}
	})
}

func TestRing(t *testing.T) {
	var r Ring
	if !r.IsEmpty() {
		t.Fatal("new ring should be empty")
	}

	for i := 0; i < RingSize+10; i++ {
		r.Push(Event(i))
	}
	if r.Len() != RingSize {
		t.Errorf("got %d events", r.Len())
	}

	e, ok := r.Pop()
	if !ok || e != Event(10) {
		t.Errorf("oldest surviving event should be 10, got %d", e)
	}

	events := r.Drain()
	if len(events) != RingSize-1 || events[len(events)-1] != Event(RingSize+9) {
		t.Errorf("drained %d events", len(events))
	}
	if !r.IsEmpty() {
		t.Error("ring should be empty after drain")
	}

	r.Push(1)
	r.Push(2)
	r.Discard()
	if !r.IsEmpty() {
		t.Error("discard should drop the backlog")
	}
	r.Push(3)
	if e, _ := r.Pop(); e != 3 {
		t.Errorf("got %d", e)
	}
}

func TestRingConcurrent(t *testing.T) {
	var (
		r    Ring
		wg   sync.WaitGroup
		last = -1
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100000; i++ {
			r.Push(Event(i))
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		e, ok := r.Pop()
		if ok {
			if int(e) <= last {
				t.Fatalf("event %d after %d", e, last)
			}
			last = int(e)
			continue
		}
		select {
		case <-done:
			for _, e := range r.Drain() {
				last = int(e)
			}
			if last != 99999 {
				t.Errorf("last event %d", last)
			}
			return
		default:
		}
	}
}

func TestPcap(t *testing.T) {
	events := []Event{MakeEvent(1, 2, Write), MakeEvent(0xFFFF, 0xFF, Read) | 0x07000000}

	var buf bytes.Buffer
	if err := WritePcap(&buf, events); err != nil {
		t.Fatal(err)
	}
	got, err := ReadPcap(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != events[0] || got[1] != events[1] || got[1].Ext() != 7 {
		t.Errorf("got %v", got)
	}

	if _, err := ReadPcap(bytes.NewReader([]byte("junk"))); err == nil {
		t.Error("junk should not parse")
	}
}

type fakeSource struct {
	lock    sync.Mutex
	started bool
	events  []uint32
}

func (s *fakeSource) Start() {
	s.lock.Lock()
	s.started = true
	s.lock.Unlock()
}

func (s *fakeSource) IsEmpty() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.events) == 0
}

func (s *fakeSource) Pop() uint32 {
	s.lock.Lock()
	defer s.lock.Unlock()
	v := s.events[0]
	s.events = s.events[1:]
	return v
}

func (s *fakeSource) add(e Event) {
	s.lock.Lock()
	s.events = append(s.events, uint32(e))
	s.lock.Unlock()
}

type flat [0x1000]byte

func (m *flat) ReadByte(addr memory.Pointer) byte         { return m[addr] }
func (m *flat) WriteByte(addr memory.Pointer, data byte) { m[addr] = data }

func TestPipeline(t *testing.T) {
	mem := &memory.Map{}
	mem.InstallMemoryDevice(&flat{}, 0, 0xFFF)
	mc := processor.NewMulticore(mem, 0x100)
	defer mc.Close()

	shared := &Shared{}
	shared.Watch.Enable(0x10, 0x1F)
	src := &fakeSource{}
	p := &Pipeline{Shared: shared, Source: src, Lockout: mc.Lockout, LoopPC: 0x200}
	if err := mc.LaunchCore1(p.Run); err != nil {
		t.Fatal(err)
	}

	src.add(MakeEvent(0x05, 1, Write))
	src.add(MakeEvent(0x15, 2, Write))
	src.add(MakeEvent(0x1F, 3, Read))

	deadline := time.Now().Add(time.Second)
	for {
		if seen, kept := shared.Stats(); seen == 3 && kept == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pipeline did not drain the source")
		}
		time.Sleep(time.Millisecond)
	}

	events := shared.Log.Drain()
	if len(events) != 2 || events[0].String() != "W:0015:02" || events[1].String() != "R:001f:03" {
		t.Errorf("got %v", events)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mc.Lockout.StartBlocking(ctx); err != nil {
		t.Fatal("capture loop should park:", err)
	}
	if mc.Cores[1].PC() != 0x100 {
		t.Error("capture loop is not parked")
	}
	if err := mc.Lockout.EndBlocking(ctx); err != nil {
		t.Fatal(err)
	}
}
