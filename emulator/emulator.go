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

package emulator

import (
	"bytes"
	"log"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/clocks"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/dma"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/flash"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/pio"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/ram"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/rom"
	"github.com/andreas-jonsson/virtualrom/emulator/processor"
	"github.com/spf13/afero"
)

const (
	BootROMBase = memory.Pointer(0x00000000)
	BootROMSize = 0x4000

	// ParkPC is where a paused core waits, inside the boot ROM.
	ParkPC = BootROMBase + 0x100
)

type Config struct {
	Fs         afero.Fs
	FlashImage string

	// ClearMemory skips scrambling SRAM at power-on.
	ClearMemory bool

	EraseTime   time.Duration
	ProgramTime time.Duration

	Chip gpio.Chip
}

// Board is the emulated hardware, everything the firmware runs on.
type Board struct {
	Mem     *memory.Map
	BootROM *rom.Device
	SRAM    *ram.Device
	Flash   *flash.Device
	DMA     *dma.Device
	PIO     [2]*pio.Device
	GPIO    *gpio.Device
	Clocks  *clocks.Device
	Cores   *processor.Multicore

	peripherals []peripheral.Peripheral
}

// bootImage is an endless "wfe; b ." loop.
func bootImage() []byte {
	return bytes.Repeat([]byte{0x20, 0xBF, 0xFE, 0xE7}, BootROMSize/4)
}

// New powers on a board.
func New(cfg Config) (*Board, error) {
	b := &Board{
		Mem: &memory.Map{},
		BootROM: &rom.Device{
			RomName: "Boot ROM",
			Base:    BootROMBase,
			Reader:  bytes.NewReader(bootImage()),
		},
		SRAM:   &ram.Device{Clear: cfg.ClearMemory},
		DMA:    &dma.Device{},
		GPIO:   &gpio.Device{Chip: cfg.Chip},
		Clocks: &clocks.Device{},
	}
	b.Flash = &flash.Device{
		Fs:          cfg.Fs,
		Path:        cfg.FlashImage,
		Clock:       b.Clocks,
		EraseTime:   cfg.EraseTime,
		ProgramTime: cfg.ProgramTime,
	}
	b.PIO[0] = &pio.Device{Index: 0, Bus: b.GPIO}
	b.PIO[1] = &pio.Device{Index: 1, Bus: b.GPIO}

	b.peripherals = []peripheral.Peripheral{
		b.Clocks,
		b.GPIO,
		b.BootROM,
		b.SRAM,
		b.Flash,
		b.DMA,
		b.PIO[0],
		b.PIO[1],
	}

	if err := peripheral.InstallAll(b.Mem, b.peripherals); err != nil {
		peripheral.CloseAll(b.peripherals)
		return nil, err
	}

	b.Cores = processor.NewMulticore(b.Mem, ParkPC)
	log.Print("Board powered on.")
	return b, nil
}

// Close powers off the board. The companion core is stopped first so it
// never sees hardware going away under it.
func (b *Board) Close() error {
	b.Cores.Close()
	return peripheral.CloseAll(b.peripherals)
}
