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

package ram

import (
	"crypto/rand"
	"encoding/binary"
	"log"
	"sync"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/pkg/errors"
)

const (
	Base = memory.Pointer(0x20000000)
	Size = 0x42000 // 264KB
)

var ErrOutOfMemory = errors.New("out of SRAM")

type section struct {
	name string
	base memory.Pointer
	size uint32
}

// Device is the on-chip SRAM. Sections are handed out by Allocate the way
// a linker would place them. Memory is scrambled at power-on unless Clear is set.
type Device struct {
	Clear bool

	lock     sync.RWMutex
	mem      [Size]byte
	top      uint32
	sections []section
}

func (m *Device) Install(mm *memory.Map) error {
	if !m.Clear {
		rand.Read(m.mem[:]) // Scramble memory.
	}
	return mm.InstallMemoryDevice(m, Base, Base+Size-1)
}

func (m *Device) Name() string {
	return "SRAM"
}

func (m *Device) Reset() {
	m.lock.Lock()
	m.top = 0
	m.sections = nil
	m.lock.Unlock()
}

// Allocate reserves size bytes aligned to align. Allocations are never freed.
func (m *Device) Allocate(name string, size, align uint32) (memory.Pointer, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.Errorf("invalid alignment %d for %s", align, name)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	base := (m.top + align - 1) &^ (align - 1)
	if base+size > Size || base+size < base {
		return 0, errors.Wrapf(ErrOutOfMemory, "%s (%d bytes)", name, size)
	}
	m.top = base + size

	p := Base + memory.Pointer(base)
	m.sections = append(m.sections, section{name, p, size})
	log.Printf("SRAM section %s: %v (%d bytes)", name, p, size)
	return p, nil
}

// Section returns the base of a previously allocated section.
func (m *Device) Section(name string) (memory.Pointer, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, s := range m.sections {
		if s.name == name {
			return s.base, true
		}
	}
	return 0, false
}

func (m *Device) ReadByte(addr memory.Pointer) byte {
	m.lock.RLock()
	v := m.mem[addr-Base]
	m.lock.RUnlock()
	return v
}

func (m *Device) WriteByte(addr memory.Pointer, data byte) {
	m.lock.Lock()
	m.mem[addr-Base] = data
	m.lock.Unlock()
}

func (m *Device) ReadWord(addr memory.Pointer) uint32 {
	addr &^= 3
	m.lock.RLock()
	v := binary.LittleEndian.Uint32(m.mem[addr-Base:])
	m.lock.RUnlock()
	return v
}

func (m *Device) WriteWord(addr memory.Pointer, data uint32) {
	addr &^= 3
	m.lock.Lock()
	binary.LittleEndian.PutUint32(m.mem[addr-Base:], data)
	m.lock.Unlock()
}
