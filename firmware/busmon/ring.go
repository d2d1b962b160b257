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
	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/dma"
)

// Ring is the hardware event ring. The write index belongs to the buffer
// channel and is only ever read here. The read index belongs to the
// single consumer.
type Ring struct {
	Buffer   memory.Pointer
	Capacity uint32

	dma       *dma.Device
	mem       *memory.Map
	src       memory.Pointer
	dreq      dma.Dreq
	countWord memory.Pointer
	bufCh     int
	trigCh    int
	rp        uint32
}

// NewRing allocates the ring buffer and claims its channel pair.
func NewRing(d *dma.Device, mem *memory.Map, alloc Allocator, src memory.Pointer, dreq dma.Dreq) (*Ring, error) {
	r := &Ring{Capacity: RingEntries, dma: d, mem: mem, src: src, dreq: dreq}
	var err error

	if r.Buffer, err = alloc.Allocate(".noinit.busmon_ring", RingEntries*4, RingEntries*4); err != nil {
		return nil, err
	}
	if r.countWord, err = alloc.Allocate(".data.busmon_count", 4, 4); err != nil {
		return nil, err
	}
	if r.trigCh, err = d.ClaimUnused(false); err != nil {
		return nil, err
	}
	if r.bufCh, err = d.ClaimUnused(false); err != nil {
		return nil, err
	}
	return r, nil
}

// Arm starts the channel pair. The buffer channel fills the ring and
// chains to the trigger channel, which rewrites the buffer channel's
// transfer count and so restarts it, forever.
func (r *Ring) Arm() {
	r.mem.WriteWord(r.countWord, r.Capacity)

	trigCfg := dma.DefaultConfig(r.trigCh)
	trigCfg.ReadIncrement = false
	r.dma.Configure(r.trigCh, trigCfg, dma.RegisterAddr(r.bufCh, dma.Al1TransCountTrig), r.countWord, 1, false)

	bufCfg := dma.DefaultConfig(r.bufCh)
	bufCfg.ReadIncrement = false
	bufCfg.WriteIncrement = true
	bufCfg.RingBits = ringBits
	bufCfg.RingWrite = true
	bufCfg.ChainTo = r.trigCh
	bufCfg.Dreq = r.dreq
	r.dma.Configure(r.bufCh, bufCfg, r.Buffer, r.src, r.Capacity, false)

	r.dma.Start(r.trigCh)
}

// WriteIndex is the slot the hardware writes next.
func (r *Ring) WriteIndex() uint32 {
	return uint32(r.dma.WriteAddr(r.bufCh)-r.Buffer) / 4 % r.Capacity
}

// Start discards the backlog.
func (r *Ring) Start() {
	r.rp = r.WriteIndex()
}

func (r *Ring) IsEmpty() bool {
	return r.rp == r.WriteIndex()
}

// Pop returns the entry at the read index. The ring must not be empty.
func (r *Ring) Pop() uint32 {
	v := r.mem.ReadWord(r.Buffer + memory.Pointer(r.rp*4))
	r.rp = (r.rp + 1) % r.Capacity
	return v
}
