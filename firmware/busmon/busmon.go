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

// Package busmon watches the external bus.
//
// The write path copies every external write into the RAM image. A state
// machine latches {address, data} when the write strobe is released and
// pushes two words: the address of table[data] in a 256 byte identity
// table and the address of image[address]. An address channel writes them
// into the read address and write address trigger of a data channel,
// which copies the byte.
//
// The capture path pushes the pin snapshot of every access into a 64 entry
// ring through a buffer channel that a trigger channel rearms on every
// completion.
package busmon

import (
	"context"
	"log"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/dma"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/pio"
	"github.com/pkg/errors"
)

const (
	RingEntries = 64
	ringBits    = 8 // log2(RingEntries * 4)
	tableSize   = 256
)

// Allocator hands out resident memory.
type Allocator interface {
	Allocate(name string, size, align uint32) (memory.Pointer, error)
}

type wrProgram struct{}

func (wrProgram) Name() string {
	return "busmon_wr"
}

func (wrProgram) Run(ctx context.Context, sm *pio.StateMachine) error {
	imageTop, err := sm.Pull(ctx)
	if err != nil {
		return err
	}
	tableTop, err := sm.Pull(ctx)
	if err != nil {
		return err
	}

	for {
		e, err := sm.Next(ctx)
		if err != nil {
			return err
		}
		if !e.Prev.Writing() || e.Cur.Writing() {
			continue
		}
		if err := sm.Push(ctx, tableTop<<8|uint32(e.Prev.Data())); err != nil {
			return err
		}
		if err := sm.Push(ctx, imageTop<<16|uint32(e.Prev.Addr())); err != nil {
			return err
		}
	}
}

type capProgram struct{}

func (capProgram) Name() string {
	return "busmon_cap"
}

func (capProgram) Run(ctx context.Context, sm *pio.StateMachine) error {
	for {
		e, err := sm.Next(ctx)
		if err != nil {
			return err
		}
		if e.Prev.Strobed() && !e.Cur.Strobed() {
			if err := sm.Push(ctx, uint32(e.Prev)); err != nil {
				return err
			}
		}
	}
}

// Monitor holds the resources claimed by Init. It is the hardware
// source of the capture pipeline.
type Monitor struct {
	Image   memory.Pointer
	Table   memory.Pointer
	WR, Cap int
	AddrCh  int
	DataCh  int
	Ring    *Ring

	pio     *pio.Device
	started bool
}

// Start arms the capture ring and enables the capture state machine.
// Until then accesses are not captured.
func (m *Monitor) Start() {
	if !m.started {
		m.started = true
		m.Ring.Arm()
		if err := m.pio.Start(m.Cap, capProgram{}); err != nil {
			log.Print(err)
		}
	}
	m.Ring.Start()
}

func (m *Monitor) IsEmpty() bool {
	return m.Ring.IsEmpty()
}

func (m *Monitor) Pop() uint32 {
	return m.Ring.Pop()
}

// Init arms the write path for image and claims the capture path.
// The capture path is armed by the capture loop through Start.
func Init(ctx context.Context, p *pio.Device, d *dma.Device, mem *memory.Map, alloc Allocator, image memory.Pointer) (*Monitor, error) {
	if !image.Aligned(0x10000) {
		return nil, errors.Errorf("image %v is not 64KB aligned", image)
	}

	m := &Monitor{Image: image, pio: p}
	var err error

	if m.Table, err = alloc.Allocate(".noinit.identity", tableSize, tableSize); err != nil {
		return nil, err
	}
	for i := 0; i < tableSize; i++ {
		mem.WriteByte(m.Table+memory.Pointer(i), byte(i))
	}

	if m.WR, err = p.ClaimUnused(false); err != nil {
		return nil, err
	}
	if m.Cap, err = p.ClaimUnused(false); err != nil {
		return nil, err
	}
	if m.AddrCh, err = d.ClaimUnused(false); err != nil {
		return nil, err
	}
	if m.DataCh, err = d.ClaimUnused(false); err != nil {
		return nil, err
	}

	addrCfg := dma.DefaultConfig(m.AddrCh)
	addrCfg.ReadIncrement = false
	addrCfg.WriteIncrement = true
	addrCfg.RingBits = 3
	addrCfg.RingWrite = true
	addrCfg.Dreq = p.Dreq(m.WR, false)
	d.Configure(m.AddrCh, addrCfg, dma.RegisterAddr(m.DataCh, dma.Al2ReadAddr), p.RXF(m.WR), 2, false)

	dataCfg := dma.DefaultConfig(m.DataCh)
	dataCfg.DataSize = dma.Size8
	dataCfg.ReadIncrement = false
	dataCfg.ChainTo = m.AddrCh
	d.Configure(m.DataCh, dataCfg, image, m.Table, 1, false)

	if err := p.Start(m.WR, wrProgram{}); err != nil {
		return nil, err
	}
	if err := p.PutBlocking(ctx, m.WR, image.Top(16)); err != nil {
		return nil, errors.Wrap(err, "busmon handshake")
	}
	if err := p.PutBlocking(ctx, m.WR, m.Table.Top(8)); err != nil {
		return nil, errors.Wrap(err, "busmon handshake")
	}
	d.Start(m.AddrCh)

	m.Ring, err = NewRing(d, mem, alloc, p.RXF(m.Cap), p.Dreq(m.Cap, false))
	return m, err
}
