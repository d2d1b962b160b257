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

package dma

import (
	"github.com/andreas-jonsson/virtualrom/emulator/memory"
)

// CTRL register fields.
const (
	ctrlEnable       = 1 << 0
	ctrlDataSize     = 2
	ctrlIncrRead     = 1 << 4
	ctrlIncrWrite    = 1 << 5
	ctrlRingSize     = 6
	ctrlRingSel      = 1 << 10
	ctrlChainTo      = 11
	ctrlTreqSel      = 15
	ctrlBusy         = 1 << 24
	treqUnpaced      = 0x3F
	treqPaced        = 0x00
	ctrlWritableMask = 0x1FFFFF
)

// encodeCtrl packs a config into a CTRL register value.
func encodeCtrl(cfg Config, busy bool) uint32 {
	v := uint32(ctrlEnable)
	switch cfg.DataSize {
	case Size8:
	case Size16:
		v |= 1 << ctrlDataSize
	default:
		v |= 2 << ctrlDataSize
	}
	if cfg.ReadIncrement {
		v |= ctrlIncrRead
	}
	if cfg.WriteIncrement {
		v |= ctrlIncrWrite
	}
	v |= uint32(cfg.RingBits&0xF) << ctrlRingSize
	if cfg.RingWrite {
		v |= ctrlRingSel
	}
	v |= uint32(cfg.ChainTo&0xF) << ctrlChainTo
	if cfg.Dreq == nil {
		v |= treqUnpaced << ctrlTreqSel
	} else {
		v |= treqPaced << ctrlTreqSel
	}
	if busy {
		v |= ctrlBusy
	}
	return v
}

// decodeCtrl updates cfg from a CTRL register value. The pacing source
// can only be set through Configure and is kept unless the value selects
// unpaced transfers.
func decodeCtrl(cfg Config, v uint32) Config {
	switch (v >> ctrlDataSize) & 3 {
	case 0:
		cfg.DataSize = Size8
	case 1:
		cfg.DataSize = Size16
	default:
		cfg.DataSize = Size32
	}
	cfg.ReadIncrement = v&ctrlIncrRead != 0
	cfg.WriteIncrement = v&ctrlIncrWrite != 0
	cfg.RingBits = uint(v>>ctrlRingSize) & 0xF
	cfg.RingWrite = v&ctrlRingSel != 0
	cfg.ChainTo = int(v>>ctrlChainTo) & 0xF
	if (v>>ctrlTreqSel)&0x3F == treqUnpaced {
		cfg.Dreq = nil
	}
	return cfg
}

func decode(addr memory.Pointer) (int, uint32) {
	off := uint32(addr - Base)
	return int(off / stride), off % stride &^ 3
}

func (d *Device) ReadWord(addr memory.Pointer) uint32 {
	ch, reg := decode(addr)
	c := &d.ch[ch]
	c.lock.Lock()
	defer c.lock.Unlock()

	switch reg {
	case ReadAddr, Al1ReadAddr, Al2ReadAddr, Al3ReadAddrTrig:
		return uint32(c.readAddr)
	case WriteAddr, Al1WriteAddr, Al2WriteAddrTrig, Al3WriteAddr:
		return uint32(c.writeAddr)
	case TransCount, Al1TransCountTrig, Al2TransCount, Al3TransCount:
		return c.count
	default:
		return encodeCtrl(c.cfg, c.busy)
	}
}

func (d *Device) WriteWord(addr memory.Pointer, data uint32) {
	ch, reg := decode(addr)
	c := &d.ch[ch]
	c.lock.Lock()

	trigger := false
	switch reg {
	case ReadAddr, Al1ReadAddr, Al2ReadAddr:
		c.readAddr = memory.Pointer(data)
	case Al3ReadAddrTrig:
		c.readAddr = memory.Pointer(data)
		trigger = true
	case WriteAddr, Al1WriteAddr, Al3WriteAddr:
		c.writeAddr = memory.Pointer(data)
	case Al2WriteAddrTrig:
		c.writeAddr = memory.Pointer(data)
		trigger = true
	case TransCount, Al2TransCount, Al3TransCount:
		c.reload = data
	case Al1TransCountTrig:
		c.reload = data
		trigger = true
	case CtrlTrig:
		c.cfg = decodeCtrl(c.cfg, data&ctrlWritableMask)
		trigger = true
	default:
		c.cfg = decodeCtrl(c.cfg, data&ctrlWritableMask)
	}
	c.lock.Unlock()

	if trigger && data != 0 {
		d.Start(ch)
	}
}

func (d *Device) ReadByte(addr memory.Pointer) byte {
	return byte(d.ReadWord(addr) >> ((addr & 3) * 8))
}

// WriteByte replicates the byte across the word, like the bus fabric does
// for narrow writes to peripheral registers.
func (d *Device) WriteByte(addr memory.Pointer, data byte) {
	d.WriteWord(addr, uint32(data)*0x01010101)
}
