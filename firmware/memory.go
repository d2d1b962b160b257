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
	"fmt"
	"io"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
)

func (d *Device) at(addr uint16) memory.Pointer {
	return d.device + memory.Pointer(addr)
}

// Peek reads a byte of the selected image.
func (d *Device) Peek(addr uint16) byte {
	return d.Board.Mem.ReadByte(d.at(addr))
}

// Poke writes a byte of the selected image.
func (d *Device) Poke(addr uint16, v byte) {
	d.Board.Mem.WriteByte(d.at(addr), v)
}

// Dump prints lines of 16 bytes from the selected image starting at addr,
// wrapping at the end of the image. It returns the address after the dump.
func (d *Device) Dump(w io.Writer, addr uint16, lines int) uint16 {
	var row [16]byte
	for y := 0; y < lines; y++ {
		for x := range row {
			row[x] = d.Peek(addr + uint16(x))
		}

		fmt.Fprintf(w, "%04x ", addr)
		for _, v := range row {
			fmt.Fprintf(w, " %02x", v)
		}
		fmt.Fprint(w, "  ")
		for _, v := range row {
			if v < 0x20 || v > 0x7E {
				v = '.'
			}
			fmt.Fprintf(w, "%c", v)
		}
		fmt.Fprintln(w)
		addr += 16
	}
	return addr
}

// DumpNext dumps from the dump cursor, or from addr if set, and moves the
// cursor one page on.
func (d *Device) DumpNext(w io.Writer, addr *uint16) {
	if addr != nil {
		d.dumpAddr = *addr
	}
	d.Dump(w, d.dumpAddr, int(d.Config.DumpLines))
	d.dumpAddr += 0x100
}

// Edit writes v at the edit cursor, or at addr if set, and advances the cursor.
func (d *Device) Edit(addr *uint16, v byte) {
	if addr != nil {
		d.editAddr = *addr
	}
	d.Poke(d.editAddr, v)
	d.editAddr++
}

// EditCursor returns the current edit address and the byte there.
func (d *Device) EditCursor() (uint16, byte) {
	return d.editAddr, d.Peek(d.editAddr)
}

func (d *Device) SetEditCursor(addr uint16) {
	d.editAddr = addr
}

// Fill sets every byte in [start, end] to v.
func (d *Device) Fill(start, end uint16, v byte) error {
	if start > end {
		return ErrBadRange
	}
	for a := uint32(start); a <= uint32(end); a++ {
		d.Poke(uint16(a), v)
	}
	return nil
}

// Move copies [start, end] to dest. Overlapping ranges are handled and
// addresses wrap at the end of the image.
func (d *Device) Move(start, end, dest uint16) error {
	if start > end {
		return ErrBadRange
	}
	n := end - start

	if dest > start {
		src, dst := end, dest+n
		for {
			d.Poke(dst, d.Peek(src))
			if src == start {
				return nil
			}
			src--
			dst--
		}
	}

	src, dst := start, dest
	for {
		d.Poke(dst, d.Peek(src))
		if src == end {
			return nil
		}
		src++
		dst++
	}
}
