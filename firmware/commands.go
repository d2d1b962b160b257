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

package firmware

import (
	"context"

	"github.com/andreas-jonsson/virtualrom/firmware/capture"
	"github.com/andreas-jonsson/virtualrom/firmware/store"
	"github.com/pkg/errors"
)

var (
	ErrBadDevice    = errors.New("unknown device, only ram or rom")
	ErrBadRange     = errors.New("start is after end")
	ErrBadLineCount = errors.New("illegal dump line count")
	ErrBadInit      = errors.New("illegal parameter, only all, rom or config")
)

// CaptureStart discards everything logged so far.
func (d *Device) CaptureStart() {
	d.Shared.Log.Discard()
}

func (d *Device) IsEmpty() bool {
	return d.Shared.Log.IsEmpty()
}

func (d *Device) Pop() (capture.Event, bool) {
	return d.Shared.Log.Pop()
}

// EnableRange starts keeping events for [start, end]. It takes effect at once.
func (d *Device) EnableRange(start, end uint16) {
	d.Shared.Watch.Enable(start, end)
}

func (d *Device) DisableRange(start, end uint16) {
	d.Shared.Watch.Disable(start, end)
}

func (d *Device) ListRanges(start, end uint16) []capture.Range {
	return d.Shared.Watch.Ranges(start, end)
}

// SaveWatch persists the watch bitmap.
func (d *Device) SaveWatch(ctx context.Context) bool {
	copy(d.Config.Watch[:], d.Shared.Watch.Bytes())
	return d.Store.SaveSlow(ctx, d.Config)
}

// SelectDevice picks the image the memory commands work on.
func (d *Device) SelectDevice(name string) error {
	switch name {
	case "rom":
		d.device = d.rom
	case "ram":
		d.device = d.ram
	default:
		return errors.Wrap(ErrBadDevice, name)
	}
	return nil
}

func (d *Device) DeviceName() string {
	switch d.device {
	case d.rom:
		return "rom"
	case d.ram:
		return "ram"
	}
	return "unknown"
}

// SelectBank makes bank n the one loaded at boot and persists the choice.
func (d *Device) SelectBank(ctx context.Context, n int) (bool, error) {
	if err := store.CheckBank(n); err != nil {
		return false, err
	}
	d.Config.Bank = int32(n)
	return d.Store.SaveSlow(ctx, d.Config), nil
}

// LoadBank copies bank n into the ROM image.
func (d *Device) LoadBank(ctx context.Context, n int) (bool, error) {
	if err := store.CheckBank(n); err != nil {
		return false, err
	}
	return d.Store.LoadBankSlow(ctx, n, d.rom), nil
}

// SaveBank writes the ROM image to bank n.
func (d *Device) SaveBank(ctx context.Context, n int) (bool, error) {
	if err := store.CheckBank(n); err != nil {
		return false, err
	}
	return d.Store.SaveBankSlow(ctx, n, d.rom), nil
}

func (d *Device) EraseBank(ctx context.Context, n int) (bool, error) {
	if err := store.CheckBank(n); err != nil {
		return false, err
	}
	return d.Store.EraseBankSlow(ctx, n), nil
}

// ConfigLoad replaces the running configuration with the stored one.
// The running configuration is kept if the stored one is not valid.
func (d *Device) ConfigLoad(ctx context.Context) bool {
	cfg, ok := d.Store.Load(ctx)
	if ok {
		d.Config = cfg
	}
	return ok
}

func (d *Device) ConfigSave(ctx context.Context) bool {
	return d.Store.SaveSlow(ctx, d.Config)
}

// SwitchMode persists the new mode and reboots into it.
func (d *Device) SwitchMode(ctx context.Context, mode store.Mode) (bool, error) {
	if mode != store.ModeEmulator && mode != store.ModeClone {
		return false, errors.Wrap(store.ErrBadMode, mode.String())
	}
	d.Config.Mode = mode
	ok := d.Store.SaveSlow(ctx, d.Config)
	d.Reboot()
	return ok, nil
}

// SetDumpLines sets the number of lines Dump prints, optionally persisting it.
func (d *Device) SetDumpLines(ctx context.Context, n int, save bool) (bool, error) {
	if n <= 0 {
		return false, ErrBadLineCount
	}
	d.Config.DumpLines = int32(n)
	if save {
		return d.Store.SaveSlow(ctx, d.Config), nil
	}
	return true, nil
}

// SaveGPIO persists the current pin configuration.
func (d *Device) SaveGPIO(ctx context.Context) bool {
	d.Config.GPIO = d.Board.GPIO.Settings()
	return d.Store.SaveSlow(ctx, d.Config)
}

// Init resets banks, configuration or both. Resetting the configuration reboots.
func (d *Device) Init(ctx context.Context, what string) (bool, error) {
	var banks, config bool
	switch what {
	case "all":
		banks, config = true, true
	case "rom":
		banks = true
	case "config":
		config = true
	default:
		return false, errors.Wrap(ErrBadInit, what)
	}

	ok := true
	if banks {
		for n := 0; n < store.NumBanks; n++ {
			if !d.Store.EraseBankSlow(ctx, n) {
				ok = false
			}
		}
	}
	if config {
		d.Config = store.DefaultConfig()
		if !d.Store.SaveSlow(ctx, d.Config) {
			ok = false
		}
		d.Reboot()
	}
	return ok, nil
}
