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

package processor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
)

const (
	loopPC = memory.Pointer(0x2000)
	parkPC = memory.Pointer(0x100)
)

type flat [0x4000]byte

func (m *flat) ReadByte(addr memory.Pointer) byte         { return m[addr] }
func (m *flat) WriteByte(addr memory.Pointer, data byte) { m[addr] = data }

func newMap(t *testing.T) *memory.Map {
	m := &memory.Map{}
	if err := m.InstallMemoryDevice(&flat{}, 0, 0x3FFF); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestInterrupts(t *testing.T) {
	c := NewCore(0, newMap(t))
	if !c.InterruptsEnabled() {
		t.Fatal("interrupts should be enabled at reset")
	}

	outer := c.SaveAndDisableInterrupts()
	inner := c.SaveAndDisableInterrupts()
	if c.InterruptsEnabled() {
		t.Error("interrupts still enabled")
	}
	c.RestoreInterrupts(inner)
	if c.InterruptsEnabled() {
		t.Error("inner restore should keep interrupts disabled")
	}
	c.RestoreInterrupts(outer)
	if !c.InterruptsEnabled() {
		t.Error("outer restore should enable interrupts")
	}
	if c.GetStats().NumInterrupts != 1 {
		t.Errorf("got %+v", c.GetStats())
	}
}

func TestLaunch(t *testing.T) {
	mc := NewMulticore(newMap(t), parkPC)
	var ran atomic.Bool
	entry := func(ctx context.Context, c *Core) {
		ran.Store(c.Index == 1)
		<-ctx.Done()
	}

	if err := mc.LaunchCore1(entry); err != nil {
		t.Fatal(err)
	}
	if err := mc.LaunchCore1(entry); err != ErrCoreRunning {
		t.Errorf("got %v", err)
	}
	mc.Close()
	if !ran.Load() || !mc.Launched() {
		t.Error("companion did not run")
	}
}

func TestLockout(t *testing.T) {
	mc := NewMulticore(newMap(t), parkPC)
	defer mc.Close()
	l := mc.Lockout

	var counter atomic.Int64
	mc.LaunchCore1(func(ctx context.Context, c *Core) {
		l.VictimInit()
		for {
			c.Exec(loopPC)
			if !l.Poll(ctx, c) {
				return
			}
			counter.Add(1)
			time.Sleep(100 * time.Microsecond)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for !l.IsVictim() {
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 3; i++ {
		if err := l.StartBlocking(ctx); err != nil {
			t.Fatal(err)
		}
		if !l.Paused() || mc.Cores[1].PC() != parkPC {
			t.Fatal("companion is not parked")
		}

		n := counter.Load()
		time.Sleep(5 * time.Millisecond)
		if counter.Load() != n {
			t.Fatal("companion ran while parked")
		}

		if err := l.EndBlocking(ctx); err != nil {
			t.Fatal(err)
		}
		if mc.Cores[1].PC() != loopPC {
			t.Errorf("companion resumed at %v", mc.Cores[1].PC())
		}
	}
	if l.Pauses() != 3 {
		t.Errorf("got %d pauses", l.Pauses())
	}
}

// pollingVictim launches a companion that only polls and counts.
func pollingVictim(t *testing.T, mc *Multicore) *atomic.Int64 {
	var counter atomic.Int64
	l := mc.Lockout
	mc.LaunchCore1(func(ctx context.Context, c *Core) {
		l.VictimInit()
		c.Exec(loopPC)
		for l.Poll(ctx, c) {
			counter.Add(1)
			time.Sleep(50 * time.Microsecond)
		}
	})
	for !l.IsVictim() {
		time.Sleep(time.Millisecond)
	}
	return &counter
}

func waitRunning(t *testing.T, counter *atomic.Int64) {
	t.Helper()
	n := counter.Load()
	deadline := time.Now().Add(time.Second)
	for counter.Load() == n {
		if time.Now().After(deadline) {
			t.Fatal("companion is not running")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLockoutClose(t *testing.T) {
	mc := NewMulticore(newMap(t), parkPC)
	pollingVictim(t, mc)

	done := make(chan struct{})
	go func() {
		mc.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("polling companion did not stop")
	}
}

func TestLockoutAbandoned(t *testing.T) {
	mc := NewMulticore(newMap(t), parkPC)
	defer mc.Close()
	l := mc.Lockout
	counter := pollingVictim(t, mc)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()

	for i := 0; i < 20; i++ {
		if l.StartBlocking(cancelled) == nil {
			l.EndBlocking(ctx)
		}
		waitRunning(t, counter)
	}

	for i := 0; i < 20; i++ {
		if err := l.StartBlocking(ctx); err != nil {
			t.Fatal(err)
		}
		l.EndBlocking(cancelled)
		waitRunning(t, counter)
		if l.Paused() || mc.Cores[1].PC() != loopPC {
			t.Fatal("companion still parked after an abandoned release")
		}
	}

	if err := l.StartBlocking(ctx); err != nil {
		t.Fatal("lockout unusable after abandoned pauses:", err)
	}
	if err := l.EndBlocking(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestLockoutWithoutVictim(t *testing.T) {
	l := NewLockout(parkPC)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.StartBlocking(ctx); err == nil {
		t.Error("lockout without a victim should block")
	}
}

func TestSleep(t *testing.T) {
	mc := NewMulticore(newMap(t), parkPC)
	defer mc.Close()
	l := mc.Lockout

	mc.LaunchCore1(func(ctx context.Context, c *Core) {
		l.VictimInit()
		for l.Sleep(ctx, c, time.Hour) {
		}
	})
	for !l.IsVictim() {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.StartBlocking(ctx); err != nil {
		t.Fatal("sleeping companion should still park:", err)
	}
	if err := l.EndBlocking(ctx); err != nil {
		t.Fatal(err)
	}
}
