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

package pio

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/pkg/errors"
)

const (
	Base0            = memory.Pointer(0x50200000)
	Base1            = memory.Pointer(0x50300000)
	Size             = 0x1000
	NumStateMachines = 4

	regFStat = 0x04
	regTXF   = 0x10
	regRXF   = 0x20
)

var ErrNoStateMachine = errors.New("no PIO state machine available")

// Program is the behaviour loaded into a state machine. Run consumes pin
// transitions and produces FIFO words or driven pin values until ctx ends.
type Program interface {
	Name() string
	Run(ctx context.Context, sm *StateMachine) error
}

// Dreq is the pacing signal a FIFO gives the DMA.
type Dreq interface {
	Wait(ctx context.Context) error
}

type StateMachine struct {
	index  int
	tx, rx *FIFO
	bus    *gpio.Device
	sub    *gpio.Subscription
}

func (sm *StateMachine) Index() int {
	return sm.index
}

func (sm *StateMachine) Bus() *gpio.Device {
	return sm.bus
}

// Next waits for the next pin transition.
func (sm *StateMachine) Next(ctx context.Context) (gpio.Edge, error) {
	select {
	case e := <-sm.sub.C:
		return e, nil
	case <-ctx.Done():
		return gpio.Edge{}, ctx.Err()
	}
}

// Push stalls while the RX FIFO is full.
func (sm *StateMachine) Push(ctx context.Context, v uint32) error {
	return sm.rx.Push(ctx, v)
}

// Pull stalls while the TX FIFO is empty.
func (sm *StateMachine) Pull(ctx context.Context) (uint32, error) {
	return sm.tx.Pop(ctx)
}

// Device is one PIO block with four state machines.
type Device struct {
	Index int
	Bus   *gpio.Device

	lock    sync.Mutex
	sms     [NumStateMachines]*StateMachine
	claimed [NumStateMachines]bool
	running [NumStateMachines]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (d *Device) Base() memory.Pointer {
	if d.Index == 0 {
		return Base0
	}
	return Base1
}

func (d *Device) Install(p *memory.Map) error {
	if d.Bus == nil {
		return errors.New("no GPIO bus attached")
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	for i := range d.sms {
		d.sms[i] = &StateMachine{index: i, tx: newFIFO(), rx: newFIFO(), bus: d.Bus}
	}
	return p.InstallMemoryDevice(d, d.Base(), d.Base()+Size-1)
}

func (d *Device) Name() string {
	return fmt.Sprintf("PIO%d", d.Index)
}

func (d *Device) Reset() {
}

func (d *Device) Close() error {
	if d.cancel != nil {
		d.cancel()
		d.wg.Wait()
	}
	return nil
}

// ClaimUnused claims a free state machine. If required is set, running out
// of state machines is fatal.
func (d *Device) ClaimUnused(required bool) (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	for i, c := range d.claimed {
		if !c {
			d.claimed[i] = true
			return i, nil
		}
	}
	if required {
		log.Panic(ErrNoStateMachine)
	}
	return -1, ErrNoStateMachine
}

func (d *Device) Unclaim(sm int) {
	d.lock.Lock()
	d.claimed[sm] = false
	d.lock.Unlock()
}

// Start loads a program into a state machine and enables it.
// The state machine sees every pin transition after Start returns.
func (d *Device) Start(sm int, prog Program) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.running[sm] {
		return errors.Errorf("%s SM%d already running", d.Name(), sm)
	}
	d.running[sm] = true

	s := d.sms[sm]
	s.sub = d.Bus.Subscribe()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer s.sub.Close()

		if err := prog.Run(d.ctx, s); err != nil && d.ctx.Err() == nil {
			log.Printf("%s SM%d (%s) stopped: %v", d.Name(), sm, prog.Name(), err)
		}
	}()
	return nil
}

// PutBlocking writes to the TX FIFO of a state machine, waiting for space.
func (d *Device) PutBlocking(ctx context.Context, sm int, v uint32) error {
	return d.sms[sm].tx.Push(ctx, v)
}

// GetBlocking reads from the RX FIFO of a state machine, waiting for data.
func (d *Device) GetBlocking(ctx context.Context, sm int) (uint32, error) {
	return d.sms[sm].rx.Pop(ctx)
}

func (d *Device) TXF(sm int) memory.Pointer {
	return d.Base() + regTXF + memory.Pointer(sm*4)
}

func (d *Device) RXF(sm int) memory.Pointer {
	return d.Base() + regRXF + memory.Pointer(sm*4)
}

// Dreq returns the DMA pacing signal for a state machine FIFO.
// TX requests while not full, RX while not empty.
func (d *Device) Dreq(sm int, tx bool) Dreq {
	if tx {
		return dreq{d.sms[sm].tx, true}
	}
	return dreq{d.sms[sm].rx, false}
}

// fstat mirrors the FSTAT register: RXEMPTY bits 8-11, TXFULL bits 16-19.
func (d *Device) fstat() uint32 {
	var v uint32
	for i, s := range d.sms {
		if s.rx.Len() == 0 {
			v |= 1 << (8 + i)
		}
		if s.tx.Len() == FifoDepth {
			v |= 1 << (16 + i)
		}
	}
	return v
}

func (d *Device) ReadWord(addr memory.Pointer) uint32 {
	off := uint32(addr-d.Base()) &^ 3
	switch {
	case off == regFStat:
		return d.fstat()
	case off >= regRXF && off < regRXF+NumStateMachines*4:
		v, _ := d.sms[(off-regRXF)/4].rx.TryPop()
		return v
	}
	return 0
}

func (d *Device) WriteWord(addr memory.Pointer, data uint32) {
	off := uint32(addr-d.Base()) &^ 3
	if off >= regTXF && off < regTXF+NumStateMachines*4 {
		sm := (off - regTXF) / 4
		if !d.sms[sm].tx.TryPush(data) {
			log.Printf("%s SM%d: TX FIFO overflow", d.Name(), sm)
		}
	}
}

func (d *Device) ReadByte(addr memory.Pointer) byte {
	return byte(d.ReadWord(addr))
}

// WriteByte replicates the byte across the word, like the bus fabric does
// for narrow writes to peripheral registers.
func (d *Device) WriteByte(addr memory.Pointer, data byte) {
	d.WriteWord(addr, uint32(data)*0x01010101)
}
