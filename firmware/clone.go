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
	"fmt"
	"io"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualrom/firmware/store"
	"github.com/pkg/errors"
)

const maxDiffLines = 16

var ErrNotCloneMode = errors.New("only available in clone mode")

// readChip reads a real chip on the bus into image. The device is bus master.
func (d *Device) readChip(image memory.Pointer) {
	bus := d.Board.GPIO
	bus.PutAll(gpio.Idle)
	for a := 0; a < ImageSize; a++ {
		pins := gpio.MakePins(uint16(a), 0)
		bus.PutAll(pins | gpio.OE | gpio.WR)
		bus.PutAll(pins | gpio.WR)
		d.Board.Mem.WriteByte(image+memory.Pointer(a), bus.Get().Data())
	}
	bus.PutAll(gpio.Idle)
}

// Clone reads the chip on the bus into the ROM image after waiting for wait,
// then reads it verify more times into the RAM image and compares.
func (d *Device) Clone(ctx context.Context, wait time.Duration, verify int, out io.Writer) (bool, error) {
	if d.Config.Mode != store.ModeClone {
		return false, ErrNotCloneMode
	}

	fmt.Fprintln(out, "read ROM")
	fmt.Fprintf(out, " wait  : %v\n", wait)
	fmt.Fprintf(out, " verify: %d times\n", verify)

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return false, ctx.Err()
	}

	fmt.Fprint(out, "read start ... ")
	d.readChip(d.rom)
	fmt.Fprintln(out, "done.")

	ok := true
	for i := 0; i < verify; i++ {
		fmt.Fprintf(out, "verify (%d/%d) ... ", i+1, verify)
		d.readChip(d.ram)
		if d.diff(nil) == 0 {
			fmt.Fprintln(out, "OK")
		} else {
			fmt.Fprintln(out, "NG")
			fmt.Fprintf(out, " %d mismatch(es)\n", d.diff(out))
			ok = false
		}
	}
	return ok, nil
}

// diff compares the images, listing the first mismatches to out if set.
func (d *Device) diff(out io.Writer) int {
	var n int
	mem := d.Board.Mem
	for a := 0; a < ImageSize; a++ {
		x := mem.ReadByte(d.rom + memory.Pointer(a))
		y := mem.ReadByte(d.ram + memory.Pointer(a))
		if x != y {
			if n++; out != nil && n <= maxDiffLines {
				fmt.Fprintf(out, "  %04x: %02x %02x\n", a, x, y)
			}
		}
	}
	return n
}
