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
	"sync"
	"sync/atomic"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/pkg/errors"
)

type Stats struct {
	NumFetches    uint64
	NumInterrupts uint32
}

var ErrCoreRunning = errors.New("core already running")

// Core is the part of a processor core the firmware model needs:
// the interrupt enable flag and the location it executes from.
// Instruction fetches go through the address map, so executing from
// flash while it is being written is observable.
type Core struct {
	Index int

	mem     *memory.Map
	irq     atomic.Bool
	pc      atomic.Uint32
	fetches atomic.Uint64
	masked  atomic.Uint32
}

func NewCore(index int, mem *memory.Map) *Core {
	c := &Core{Index: index, mem: mem}
	c.irq.Store(true)
	return c
}

// SaveAndDisableInterrupts returns the previous interrupt state.
func (c *Core) SaveAndDisableInterrupts() uint32 {
	if c.irq.Swap(false) {
		c.masked.Add(1)
		return 1
	}
	return 0
}

func (c *Core) RestoreInterrupts(state uint32) {
	c.irq.Store(state != 0)
}

func (c *Core) InterruptsEnabled() bool {
	return c.irq.Load()
}

// Exec moves execution to pc and fetches the instruction there.
func (c *Core) Exec(pc memory.Pointer) uint32 {
	c.pc.Store(uint32(pc))
	c.fetches.Add(1)
	return c.mem.ReadWord(pc)
}

func (c *Core) PC() memory.Pointer {
	return memory.Pointer(c.pc.Load())
}

func (c *Core) GetStats() Stats {
	return Stats{
		NumFetches:    c.fetches.Load(),
		NumInterrupts: c.masked.Load(),
	}
}

// Multicore owns the two cores. Core 0 is the operator and runs on the
// caller's goroutine. Core 1 is the companion and is launched on its own.
type Multicore struct {
	Cores   [2]*Core
	Lockout *Lockout

	lock     sync.Mutex
	launched bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewMulticore creates both cores. parkPC is where a paused companion
// waits. It must not be in flash.
func NewMulticore(mem *memory.Map, parkPC memory.Pointer) *Multicore {
	ctx, cancel := context.WithCancel(context.Background())
	return &Multicore{
		Cores:   [2]*Core{NewCore(0, mem), NewCore(1, mem)},
		Lockout: NewLockout(parkPC),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// LaunchCore1 starts entry on the companion core.
func (m *Multicore) LaunchCore1(entry func(ctx context.Context, core *Core)) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.launched {
		return ErrCoreRunning
	}
	m.launched = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		entry(m.ctx, m.Cores[1])
	}()
	return nil
}

func (m *Multicore) Launched() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.launched
}

// Close stops the companion core and waits for it.
func (m *Multicore) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}
