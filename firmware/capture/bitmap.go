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

package capture

import (
	"encoding/binary"
	"sync/atomic"
)

// BitmapSize is the size in bytes of the persisted watch bitmap.
const BitmapSize = 0x10000 / 8

// Range is an inclusive address interval.
type Range struct {
	Start, End uint16
}

// Bitmap marks the addresses whose events are kept, one bit per address.
// It is written by the operator and read by the capture loop. Bits are
// updated atomically so a reader never sees a torn word.
type Bitmap struct {
	words [BitmapSize / 4]atomic.Uint32
}

// Enable marks every address in [start, end]. Nothing happens if start > end.
func (b *Bitmap) Enable(start, end uint16) {
	for a := uint32(start); a <= uint32(end); a++ {
		b.words[a/32].Or(1 << (a % 32))
	}
}

// Disable unmarks every address in [start, end]. Nothing happens if start > end.
func (b *Bitmap) Disable(start, end uint16) {
	for a := uint32(start); a <= uint32(end); a++ {
		b.words[a/32].And(^uint32(1 << (a % 32)))
	}
}

func (b *Bitmap) Watched(addr uint16) bool {
	return b.words[addr/32].Load()&(1<<(addr%32)) != 0
}

// Ranges lists the watched intervals inside [start, end].
func (b *Bitmap) Ranges(start, end uint16) []Range {
	var (
		res   []Range
		in    bool
		first uint16
	)

	for a := uint32(start); a <= uint32(end); a++ {
		w := b.Watched(uint16(a))
		if w && !in {
			in, first = true, uint16(a)
		} else if !w && in {
			in = false
			res = append(res, Range{first, uint16(a - 1)})
		}
	}
	if in {
		res = append(res, Range{first, end})
	}
	return res
}

// Bytes returns the bitmap in its persisted layout, bit n%8 of byte n/8 for address n.
func (b *Bitmap) Bytes() []byte {
	buf := make([]byte, BitmapSize)
	for i := range b.words {
		binary.LittleEndian.PutUint32(buf[i*4:], b.words[i].Load())
	}
	return buf
}

// Load replaces the bitmap with a persisted one.
func (b *Bitmap) Load(buf []byte) {
	for i := range b.words {
		var v uint32
		if len(buf) >= i*4+4 {
			v = binary.LittleEndian.Uint32(buf[i*4:])
		}
		b.words[i].Store(v)
	}
}
