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

package gpio

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/pkg/errors"
)

var ErrTimingMiss = errors.New("data not driven in time")

// Edge is published to subscribers on every host driven pin change.
// Gen is the address generation of Cur. It increments when the address
// changes or the chip gets selected.
type Edge struct {
	Prev, Cur Pins
	Gen       uint32
}

// Settings is the user configurable part of the pin bank.
// Dir and Value only apply to the EXT pins.
type Settings struct {
	Dir, Value, PullUp, PullDown uint32
}

// DefaultSettings leaves the EXT pins as pulled down inputs.
func DefaultSettings() Settings {
	return Settings{PullDown: uint32(ExtMask)}
}

// Chip is an external memory chip attached to the bus when the device is
// the bus master, as in clone mode.
type Chip interface {
	Output(addr uint16) byte
}

type Subscription struct {
	C    <-chan Edge
	ch   chan Edge
	done chan struct{}
	once sync.Once
	d    *Device
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.d.unsubscribe(s)
	})
}

// Device is the pin bank and the external bus it is wired to.
// The host side drives address, control and (on writes) data lines.
// The device side drives data through a latch gated by an output enable.
type Device struct {
	Chip Chip

	pubLock sync.Mutex
	lock    sync.Mutex
	changed chan struct{}
	subs    []*Subscription

	host     Pins
	hostData bool
	gen      uint32

	latch    byte
	latchGen uint32
	oe       bool

	master     bool
	masterPins Pins

	settings Settings
	misses   atomic.Int64
}

func (d *Device) Install(*memory.Map) error {
	d.Reset()
	return nil
}

func (d *Device) Name() string {
	return "GPIO"
}

func (d *Device) Reset() {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.host = Idle
	d.hostData = false
	d.oe = false
	d.master = false
	d.masterPins = Idle
	d.settings = DefaultSettings()
	d.notify()
}

// notify wakes everyone waiting for a state change. Must hold d.lock.
func (d *Device) notify() {
	if d.changed != nil {
		close(d.changed)
	}
	d.changed = make(chan struct{})
}

func (d *Device) waitChan() chan struct{} {
	if d.changed == nil {
		d.changed = make(chan struct{})
	}
	return d.changed
}

// visible returns the pin levels as seen on the bus. Must hold d.lock.
func (d *Device) visible() Pins {
	p := d.host
	if d.master {
		p = d.masterPins
	}
	p &^= DataMask | ExtMask

	switch {
	case d.master:
		data := byte(0xFF)
		if d.Chip != nil && p.Reading() {
			data = d.Chip.Output(p.Addr())
		}
		p |= Pins(data) << PinData
	case d.hostData:
		p |= d.host & DataMask
	case d.oe && p.Reading():
		// The output buffer only opens while OE is asserted on the bus.
		p |= Pins(d.latch) << PinData
	default:
		p |= DataMask // Pulled up.
	}

	s := d.settings
	ext := (s.Dir & s.Value) | (^s.Dir & s.PullUp)
	return p | Pins(ext)&ExtMask
}

// Get returns all pin levels.
func (d *Device) Get() Pins {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.visible()
}

func (d *Device) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan Edge, 64), done: make(chan struct{}), d: d}
	s.C = s.ch

	d.lock.Lock()
	d.subs = append(d.subs, s)
	d.lock.Unlock()
	return s
}

func (d *Device) unsubscribe(s *Subscription) {
	d.lock.Lock()
	defer d.lock.Unlock()

	for i, v := range d.subs {
		if v == s {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// SetHost drives the host side of the bus. Data lines are only driven by
// the host when driveData is set. The resulting edge is delivered to every
// subscriber before SetHost returns.
func (d *Device) SetHost(ctx context.Context, pins Pins, driveData bool) error {
	d.pubLock.Lock()
	defer d.pubLock.Unlock()

	d.lock.Lock()
	prev := d.visible()
	if pins.Addr() != d.host.Addr() || (pins.Selected() && !d.host.Selected()) {
		d.gen++
	}
	d.host = pins & (AddrMask | DataMask | CtrlMask)
	d.hostData = driveData
	edge := Edge{Prev: prev, Cur: d.visible(), Gen: d.gen}
	subs := append([]*Subscription(nil), d.subs...)
	d.notify()
	d.lock.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- edge:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// DriveData sets the device data latch for address generation gen.
func (d *Device) DriveData(gen uint32, v byte) {
	d.lock.Lock()
	d.latch = v
	d.latchGen = gen
	d.notify()
	d.lock.Unlock()
}

func (d *Device) SetOutputEnable(on bool) {
	d.lock.Lock()
	if d.oe != on {
		d.oe = on
		d.notify()
	}
	d.lock.Unlock()
}

// Sample waits for the device to drive data for the current address.
// On timeout the pulled up bus value is returned and a timing miss is counted.
func (d *Device) Sample(ctx context.Context, timeout time.Duration) (byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		d.lock.Lock()
		if d.oe && d.latchGen == d.gen {
			v := d.latch
			d.lock.Unlock()
			return v, nil
		}
		ch := d.waitChan()
		d.lock.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			d.misses.Add(1)
			return 0xFF, ErrTimingMiss
		case <-ctx.Done():
			return 0xFF, ctx.Err()
		}
	}
}

// Misses returns the number of host reads that timed out.
func (d *Device) Misses() int64 {
	return d.misses.Load()
}

// SetMaster makes the device drive address and control lines itself.
func (d *Device) SetMaster(on bool) {
	d.lock.Lock()
	d.master = on
	d.masterPins = Idle
	d.notify()
	d.lock.Unlock()
}

// PutAll drives address and control lines in master mode.
func (d *Device) PutAll(pins Pins) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if !d.master {
		log.Print("GPIO: put while not bus master")
		return
	}
	d.masterPins = pins & (AddrMask | CtrlMask)
	d.notify()
}

func (d *Device) Settings() Settings {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.settings
}

// Apply replaces the pin configuration.
func (d *Device) Apply(s Settings) {
	s.Dir &= uint32(ExtMask)
	s.Value &= uint32(ExtMask)
	s.PullUp &= uint32(AllMask)
	s.PullDown &= uint32(AllMask)

	d.lock.Lock()
	d.settings = s
	d.notify()
	d.lock.Unlock()
}

func (d *Device) update(f func(s *Settings)) {
	d.lock.Lock()
	f(&d.settings)
	d.notify()
	d.lock.Unlock()
}

// SetDir makes an EXT pin an output or input. Other pins are ignored.
func (d *Device) SetDir(pin int, out bool) bool {
	m := uint32(1<<pin) & uint32(ExtMask)
	if m == 0 {
		return false
	}
	d.update(func(s *Settings) {
		if out {
			s.Dir |= m
		} else {
			s.Dir &^= m
		}
	})
	return true
}

// Put sets the output value of an EXT pin.
func (d *Device) Put(pin int, v bool) bool {
	m := uint32(1<<pin) & uint32(ExtMask)
	if m == 0 {
		return false
	}
	d.update(func(s *Settings) {
		if v {
			s.Value |= m
		} else {
			s.Value &^= m
		}
	})
	return true
}

// Pulse inverts an EXT output for width and then restores it.
func (d *Device) Pulse(ctx context.Context, pin int, width time.Duration) bool {
	m := uint32(1<<pin) & uint32(ExtMask)
	if m == 0 {
		return false
	}
	d.update(func(s *Settings) { s.Value ^= m })
	select {
	case <-time.After(width):
	case <-ctx.Done():
	}
	d.update(func(s *Settings) { s.Value ^= m })
	return true
}

// Pull configures the pull resistor of any pin. up and down both false disables pulls.
func (d *Device) Pull(pin int, up, down bool) bool {
	if pin < 0 || pin >= NumPins {
		return false
	}
	m := uint32(1 << pin)
	d.update(func(s *Settings) {
		s.PullUp &^= m
		s.PullDown &^= m
		if up {
			s.PullUp |= m
		} else if down {
			s.PullDown |= m
		}
	})
	return true
}
