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

// Package firmware is the device firmware running on an emulated board.
//
// The operator core runs Boot and then the command surface on the caller's
// goroutine. The companion core runs the capture loop. The bus responder
// and bus monitor run on the board's state machines and DMA.
package firmware

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator"
	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/clocks"
	"github.com/andreas-jonsson/virtualrom/firmware/busmon"
	"github.com/andreas-jonsson/virtualrom/firmware/capture"
	"github.com/andreas-jonsson/virtualrom/firmware/romemu"
	"github.com/andreas-jonsson/virtualrom/firmware/store"
	"github.com/pkg/errors"
)

const ImageSize = 0x10000

// ErrBootHalted wraps resource exhaustion during boot.
var ErrBootHalted = errors.New("boot halted")

type Options struct {
	FlashWait time.Duration
}

// Device is the operator core's state. Only Shared is touched by the
// companion core.
type Device struct {
	Board  *emulator.Board
	Store  *store.Store
	Config store.Config
	Shared *capture.Shared

	Responder *romemu.Responder
	Monitor   *busmon.Monitor

	rom, ram memory.Pointer
	loopPC   memory.Pointer
	device   memory.Pointer

	dumpAddr uint16
	editAddr uint16

	rebootOnce sync.Once
	reboot     chan struct{}
}

// New lays out resident memory and prepares the store. Nothing runs
// until Boot.
func New(b *emulator.Board, opt Options) (*Device, error) {
	d := &Device{
		Board:  b,
		Shared: &capture.Shared{},
		reboot: make(chan struct{}),
	}

	var err error
	if d.rom, err = b.SRAM.Allocate(".memimage.rom", ImageSize, ImageSize); err != nil {
		return nil, err
	}
	if d.ram, err = b.SRAM.Allocate(".memimage.ram", ImageSize, ImageSize); err != nil {
		return nil, err
	}
	if d.loopPC, err = b.SRAM.Allocate(".time_critical.capture", 0x100, 4); err != nil {
		return nil, err
	}
	d.device = d.rom

	if opt.FlashWait == 0 {
		opt.FlashWait = store.DefaultFlashWait
	}
	d.Store, err = store.New(store.Store{
		Mem:       b.Mem,
		Flash:     b.Flash,
		DMA:       b.DMA,
		Clocks:    b.Clocks,
		FlashWait: opt.FlashWait,
		Guard: &store.Guard{
			Core:    b.Cores.Cores[0],
			Lockout: b.Cores.Lockout,
		},
	}, b.SRAM)
	return d, err
}

// ROM and RAM return the image buffers.
func (d *Device) ROM() memory.Pointer { return d.rom }
func (d *Device) RAM() memory.Pointer { return d.ram }

// Boot brings the device up. Errors are fatal, the device must be rebooted.
func (d *Device) Boot(ctx context.Context) error {
	b := d.Board
	b.Clocks.SetSysClockKHz(clocks.FreqNormalKHz)

	cfg, ok := d.Store.Load(ctx)
	if !ok {
		log.Print("configuration is broken. initialize.")
		cfg = store.DefaultConfig()
		if !d.Store.SaveInitial(ctx, cfg) {
			log.Print("could not save initial configuration")
		}
	}
	d.Config = cfg

	bank := int(cfg.Bank)
	if store.CheckBank(bank) != nil {
		log.Printf("invalid rom bank %d, using 0", bank)
		bank = 0
	}

	h, err := d.Store.LoadBankAsync(bank, d.rom)
	if err != nil {
		return errors.Wrap(ErrBootHalted, err.Error())
	}
	d.Store.ClearImage(ctx, d.ram)
	d.Store.AwaitAsync(ctx, h)

	b.Clocks.SetSysClockKHz(clocks.FreqHighKHz)
	b.GPIO.Apply(cfg.GPIO)

	switch cfg.Mode {
	case store.ModeEmulator:
		if d.Responder, err = romemu.Init(ctx, b.PIO[0], b.DMA, d.rom); err != nil {
			return errors.Wrap(ErrBootHalted, err.Error())
		}
		if d.Monitor, err = busmon.Init(ctx, b.PIO[1], b.DMA, b.Mem, b.SRAM, d.ram); err != nil {
			return errors.Wrap(ErrBootHalted, err.Error())
		}
		d.Shared.Watch.Load(cfg.Watch[:])

		p := &capture.Pipeline{
			Shared:  d.Shared,
			Source:  d.Monitor,
			Lockout: b.Cores.Lockout,
			LoopPC:  d.loopPC,
		}
		if err := b.Cores.LaunchCore1(p.Run); err != nil {
			return errors.Wrap(ErrBootHalted, err.Error())
		}
	case store.ModeClone:
		b.GPIO.SetMaster(true)
		if err := b.Cores.LaunchCore1(capture.Idle(b.Cores.Lockout, d.loopPC)); err != nil {
			return errors.Wrap(ErrBootHalted, err.Error())
		}
	default:
		log.Printf("mode: %v", cfg.Mode)
	}

	log.Print(store.Magic)
	log.Printf("rom bank: %d", d.Config.Bank)
	log.Printf("mode: %v", d.Config.Mode)
	return nil
}

// RebootRequested is closed when a command asked for a reboot.
func (d *Device) RebootRequested() <-chan struct{} {
	return d.reboot
}

// Reboot asks for the board to be restarted.
func (d *Device) Reboot() {
	d.rebootOnce.Do(func() {
		log.Print("rebooting...")
		close(d.reboot)
	})
}

func (d *Device) Mode() store.Mode {
	return d.Config.Mode
}
