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

package memory

import (
	"fmt"
	"log"
)

// Address is a location on the external 16-bit memory bus.
type Address uint16

func (a Address) String() string {
	return fmt.Sprintf("0x%04X", uint16(a))
}

// Pointer is a location in the system address map.
type Pointer uint32

func (p Pointer) String() string {
	return fmt.Sprintf("0x%08X", uint32(p))
}

// Aligned reports if p is aligned to n bytes. n must be a power of two.
func (p Pointer) Aligned(n uint32) bool {
	return uint32(p)&(n-1) == 0
}

// Top returns the bits of p above the lowest n bits.
func (p Pointer) Top(n uint) uint32 {
	return uint32(p) >> n
}

type Memory interface {
	ReadByte(addr Pointer) byte
	WriteByte(addr Pointer, data byte)
}

// WordMemory is implemented by devices that handle 32-bit accesses
// themselves, like register blocks where a word access has side effects.
type WordMemory interface {
	Memory
	ReadWord(addr Pointer) uint32
	WriteWord(addr Pointer, data uint32)
}

type DummyMemory struct{}

func (m *DummyMemory) ReadByte(addr Pointer) byte {
	log.Printf("reading unmapped memory: %v", addr)
	return 0xFF
}

func (m *DummyMemory) WriteByte(addr Pointer, data byte) {
	log.Printf("writing unmapped memory: %v", addr)
}
