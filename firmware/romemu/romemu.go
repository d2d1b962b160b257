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

// Package romemu serves a memory image onto the external bus.
//
// One state machine latches the address on every new bus address and
// pushes {image top bits, address} to its RX FIFO. An address channel
// moves that word into the read address trigger of a data channel, which
// moves the addressed byte into the TX FIFO and chains back. The state
// machine drives the byte. A second state machine gates the output enable.
package romemu

import (
	"context"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/dma"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/pio"
	"github.com/pkg/errors"
)

type ioProgram struct{}

func (ioProgram) Name() string {
	return "romemu_io"
}

func (ioProgram) Run(ctx context.Context, sm *pio.StateMachine) error {
	top, err := sm.Pull(ctx)
	if err != nil {
		return err
	}

	last := ^uint32(0)
	for {
		e, err := sm.Next(ctx)
		if err != nil {
			return err
		}
		if e.Gen == last {
			continue
		}
		last = e.Gen

		if err := sm.Push(ctx, top<<16|uint32(e.Cur.Addr())); err != nil {
			return err
		}
		v, err := sm.Pull(ctx)
		if err != nil {
			return err
		}
		sm.Bus().DriveData(e.Gen, byte(v))
	}
}

type oeProgram struct{}

func (oeProgram) Name() string {
	return "romemu_oe"
}

func (oeProgram) Run(ctx context.Context, sm *pio.StateMachine) error {
	for {
		e, err := sm.Next(ctx)
		if err != nil {
			return err
		}
		sm.Bus().SetOutputEnable(e.Cur.Reading())
	}
}

// Responder holds the resources claimed by Init.
type Responder struct {
	Image          memory.Pointer
	IO, OE         int
	AddrCh, DataCh int
}

// Init arms the bus responder for image. The image must be 64KB aligned.
// Running out of state machines or channels is returned as an error and
// must halt boot.
func Init(ctx context.Context, p *pio.Device, d *dma.Device, image memory.Pointer) (*Responder, error) {
	if !image.Aligned(0x10000) {
		return nil, errors.Errorf("image %v is not 64KB aligned", image)
	}

	r := &Responder{Image: image}
	var err error

	if r.IO, err = p.ClaimUnused(false); err != nil {
		return nil, err
	}
	if r.OE, err = p.ClaimUnused(false); err != nil {
		return nil, err
	}
	if r.AddrCh, err = d.ClaimUnused(false); err != nil {
		return nil, err
	}
	if r.DataCh, err = d.ClaimUnused(false); err != nil {
		return nil, err
	}

	addrCfg := dma.DefaultConfig(r.AddrCh)
	addrCfg.ReadIncrement = false
	addrCfg.Dreq = p.Dreq(r.IO, false)
	d.Configure(r.AddrCh, addrCfg, dma.RegisterAddr(r.DataCh, dma.Al3ReadAddrTrig), p.RXF(r.IO), 1, false)

	dataCfg := dma.DefaultConfig(r.DataCh)
	dataCfg.DataSize = dma.Size8
	dataCfg.ReadIncrement = false
	dataCfg.ChainTo = r.AddrCh
	dataCfg.Dreq = p.Dreq(r.IO, true)
	d.Configure(r.DataCh, dataCfg, p.TXF(r.IO), image, 1, false)

	if err := p.Start(r.IO, ioProgram{}); err != nil {
		return nil, err
	}
	if err := p.Start(r.OE, oeProgram{}); err != nil {
		return nil, err
	}

	if err := p.PutBlocking(ctx, r.IO, image.Top(16)); err != nil {
		return nil, errors.Wrap(err, "romemu handshake")
	}
	d.Start(r.AddrCh)
	return r, nil
}
