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
	"context"
	"log"
	"sync"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/pkg/errors"
)

const (
	Base        = memory.Pointer(0x50000000)
	NumChannels = 12
	stride      = 0x40
)

// Channel register offsets. The alias registers with a TRIG suffix start
// the channel when written.
const (
	ReadAddr          = 0x00
	WriteAddr         = 0x04
	TransCount        = 0x08
	CtrlTrig          = 0x0C
	Al1Ctrl           = 0x10
	Al1ReadAddr       = 0x14
	Al1WriteAddr      = 0x18
	Al1TransCountTrig = 0x1C
	Al2Ctrl           = 0x20
	Al2TransCount     = 0x24
	Al2ReadAddr       = 0x28
	Al2WriteAddrTrig  = 0x2C
	Al3Ctrl           = 0x30
	Al3WriteAddr      = 0x34
	Al3TransCount     = 0x38
	Al3ReadAddrTrig   = 0x3C
)

var (
	ErrNoChannel = errors.New("no DMA channel available")
	ErrClaimed   = errors.New("DMA channel already claimed")
)

type DataSize uint32

const (
	Size8  DataSize = 1
	Size16 DataSize = 2
	Size32 DataSize = 4
)

// Dreq paces a channel. Wait blocks until the next transfer may proceed.
type Dreq interface {
	Wait(ctx context.Context) error
}

type Config struct {
	DataSize       DataSize
	ReadIncrement  bool
	WriteIncrement bool
	RingBits       uint // 0 disables the ring.
	RingWrite      bool // Apply the ring to the write address instead of the read address.
	ChainTo        int  // Chaining to the channel itself disables chaining.
	Dreq           Dreq // Nil for unpaced transfers.
}

// DefaultConfig matches the reset state of a channel.
func DefaultConfig(ch int) Config {
	return Config{
		DataSize:      Size32,
		ReadIncrement: true,
		ChainTo:       ch,
	}
}

type channel struct {
	lock    sync.Mutex
	claimed bool
	cfg     Config

	readAddr, writeAddr memory.Pointer
	count, reload       uint32

	busy, pending bool
	idle          chan struct{}
	trigger       chan struct{}
}

// Device is the DMA controller. Every channel is served by its own goroutine.
type Device struct {
	mem *memory.Map
	ch  [NumChannels]channel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (d *Device) Install(p *memory.Map) error {
	d.mem = p
	d.ctx, d.cancel = context.WithCancel(context.Background())

	for i := range d.ch {
		c := &d.ch[i]
		c.cfg = DefaultConfig(i)
		c.trigger = make(chan struct{}, 1)
		c.idle = make(chan struct{})
		close(c.idle)

		d.wg.Add(1)
		go d.run(i)
	}
	return p.InstallMemoryDevice(d, Base, Base+NumChannels*stride-1)
}

func (d *Device) Name() string {
	return "DMA"
}

func (d *Device) Reset() {
}

// Close stops all channels. Transfers in flight are abandoned.
func (d *Device) Close() error {
	if d.cancel != nil {
		d.cancel()
		d.wg.Wait()
	}
	return nil
}

// Claim marks channel ch as used.
func (d *Device) Claim(ch int) error {
	c := &d.ch[ch]
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.claimed {
		return errors.Wrapf(ErrClaimed, "channel %d", ch)
	}
	c.claimed = true
	return nil
}

// ClaimUnused claims a free channel. If required is set, running out of
// channels is fatal.
func (d *Device) ClaimUnused(required bool) (int, error) {
	for i := range d.ch {
		if d.Claim(i) == nil {
			return i, nil
		}
	}
	if required {
		log.Panic(ErrNoChannel)
	}
	return -1, ErrNoChannel
}

func (d *Device) Unclaim(ch int) {
	c := &d.ch[ch]
	c.lock.Lock()
	c.claimed = false
	c.lock.Unlock()
}

// Configure sets up a channel and optionally starts it.
func (d *Device) Configure(ch int, cfg Config, write, read memory.Pointer, count uint32, trigger bool) {
	c := &d.ch[ch]
	c.lock.Lock()
	c.cfg = cfg
	c.writeAddr = write
	c.readAddr = read
	c.reload = count
	c.lock.Unlock()

	if trigger {
		d.Start(ch)
	}
}

// Start triggers a channel. Triggering a busy channel restarts it once
// the current transfer completes.
func (d *Device) Start(ch int) {
	c := &d.ch[ch]
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.busy {
		c.pending = true
		return
	}
	c.busy = true
	c.count = c.reload
	c.idle = make(chan struct{})
	c.trigger <- struct{}{}
}

func (d *Device) IsBusy(ch int) bool {
	c := &d.ch[ch]
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.busy
}

func (d *Device) WaitForFinish(ctx context.Context, ch int) error {
	c := &d.ch[ch]
	c.lock.Lock()
	idle := c.idle
	c.lock.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteAddr returns the current write address of a channel.
func (d *Device) WriteAddr(ch int) memory.Pointer {
	c := &d.ch[ch]
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.writeAddr
}

// RegisterAddr returns the system address of a channel register.
func RegisterAddr(ch int, reg uint32) memory.Pointer {
	return Base + memory.Pointer(ch*stride) + memory.Pointer(reg)
}

func (d *Device) run(ch int) {
	defer d.wg.Done()
	c := &d.ch[ch]

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-c.trigger:
		}

		for {
			if err := d.transfer(c); err != nil {
				return
			}

			c.lock.Lock()
			chain := c.cfg.ChainTo
			c.lock.Unlock()
			if chain != ch {
				d.Start(chain)
			}

			c.lock.Lock()
			if c.pending {
				c.pending = false
				c.count = c.reload
				c.lock.Unlock()
				continue
			}
			c.busy = false
			close(c.idle)
			c.lock.Unlock()
			break
		}
	}
}

func (d *Device) transfer(c *channel) error {
	for {
		c.lock.Lock()
		if c.count == 0 {
			c.lock.Unlock()
			return nil
		}
		cfg := c.cfg
		read, write := c.readAddr, c.writeAddr
		c.lock.Unlock()

		if cfg.Dreq != nil {
			if err := cfg.Dreq.Wait(d.ctx); err != nil {
				return err
			}
		} else if d.ctx.Err() != nil {
			return d.ctx.Err()
		}

		switch cfg.DataSize {
		case Size8:
			d.mem.WriteByte(write, d.mem.ReadByte(read))
		case Size16:
			v := uint16(d.mem.ReadByte(read)) | uint16(d.mem.ReadByte(read+1))<<8
			d.mem.WriteByte(write, byte(v))
			d.mem.WriteByte(write+1, byte(v>>8))
		default:
			d.mem.WriteWord(write, d.mem.ReadWord(read))
		}

		c.lock.Lock()
		if cfg.ReadIncrement {
			c.readAddr = advance(read, cfg, !cfg.RingWrite)
		}
		if cfg.WriteIncrement {
			c.writeAddr = advance(write, cfg, cfg.RingWrite)
		}
		c.count--
		c.lock.Unlock()
	}
}

func advance(addr memory.Pointer, cfg Config, ring bool) memory.Pointer {
	next := addr + memory.Pointer(cfg.DataSize)
	if ring && cfg.RingBits > 0 {
		mask := memory.Pointer(1)<<cfg.RingBits - 1
		next = addr&^mask | next&mask
	}
	return next
}
