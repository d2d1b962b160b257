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

package busmon

import (
	"context"
	"testing"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator"
	"github.com/andreas-jonsson/virtualrom/emulator/host"
	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/spf13/afero"
)

func setup(t *testing.T) (*emulator.Board, *Monitor, *host.Host, context.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	b, err := emulator.New(emulator.Config{Fs: afero.NewMemMapFs(), ClearMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })

	image, err := b.SRAM.Allocate(".memimage.ram", 0x10000, 0x10000)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Init(ctx, b.PIO[1], b.DMA, b.Mem, b.SRAM, image)
	if err != nil {
		t.Fatal(err)
	}

	// Nobody drives data here, so reads only need to strobe the bus.
	return b, m, &host.Host{Bus: b.GPIO, AccessTime: time.Millisecond}, ctx
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for ", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWritePath(t *testing.T) {
	b, m, h, ctx := setup(t)

	writes := map[uint16]byte{0x0000: 0x01, 0x1234: 0xFE, 0xFFFF: 0x80, 0x8000: 0x00}
	for a, v := range writes {
		if err := h.Write(ctx, a, v); err != nil {
			t.Fatal(err)
		}
	}

	for a, v := range writes {
		a, v := a, v
		waitFor(t, "write to land", func() bool {
			return b.Mem.ReadByte(m.Image+memory.Pointer(a)) == v
		})
	}

	for i := 0; i < 100; i++ {
		h.Write(ctx, uint16(i), byte(i))
	}
	waitFor(t, "burst to land", func() bool {
		return b.Mem.ReadByte(m.Image+99) == 99
	})
	for i := 0; i < 100; i++ {
		if v := b.Mem.ReadByte(m.Image + memory.Pointer(i)); v != byte(i) {
			t.Fatalf("ram[%d] = %d", i, v)
		}
	}
}

func TestCapture(t *testing.T) {
	_, m, h, ctx := setup(t)

	h.Write(ctx, 0x0001, 0x11) // Before Start, not captured.
	m.Start()
	if !m.IsEmpty() {
		t.Fatal("ring should start empty")
	}

	h.Write(ctx, 0x0015, 0xAA)
	h.Read(ctx, 0x0016)

	waitFor(t, "events", func() bool { return !m.IsEmpty() })
	e := gpio.Pins(m.Pop())
	if e.Addr() != 0x0015 || e.Data() != 0xAA || !e.Writing() {
		t.Errorf("unexpected write snapshot %v", e)
	}

	waitFor(t, "read event", func() bool { return !m.IsEmpty() })
	e = gpio.Pins(m.Pop())
	if e.Addr() != 0x0016 || !e.Reading() {
		t.Errorf("unexpected read snapshot %v", e)
	}
}

func TestRingWrap(t *testing.T) {
	_, m, h, ctx := setup(t)
	m.Start()

	n := RingEntries + RingEntries/2
	for i := 0; i < n; i++ {
		h.Write(ctx, uint16(i), byte(i))
		waitFor(t, "event", func() bool { return !m.IsEmpty() })
		if a := gpio.Pins(m.Pop()).Addr(); a != uint16(i) {
			t.Fatalf("event %d has address %04x", i, a)
		}
	}
	if m.Ring.WriteIndex() != uint32(n%RingEntries) {
		t.Errorf("write index %d", m.Ring.WriteIndex())
	}
}
