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
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrOverlap = errors.New("memory range overlaps an installed device")

type mapping struct {
	from, to Pointer
	device   Memory
}

// Map decodes system addresses to the device installed at that range.
// Devices are installed before the hardware starts running and the map
// itself is safe for concurrent use.
type Map struct {
	lock     sync.RWMutex
	mappings []mapping
	dummy    DummyMemory
}

func (m *Map) InstallMemoryDevice(device Memory, from, to Pointer) error {
	if to < from {
		return errors.Errorf("invalid memory range %v-%v", from, to)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	for _, mp := range m.mappings {
		if from <= mp.to && to >= mp.from {
			return errors.Wrapf(ErrOverlap, "%v-%v", from, to)
		}
	}

	m.mappings = append(m.mappings, mapping{from, to, device})
	sort.Slice(m.mappings, func(i, j int) bool {
		return m.mappings[i].from < m.mappings[j].from
	})
	return nil
}

func (m *Map) GetMappedMemoryDevice(addr Pointer) Memory {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, mp := range m.mappings {
		if addr >= mp.from && addr <= mp.to {
			return mp.device
		}
	}
	return &m.dummy
}

func (m *Map) ReadByte(addr Pointer) byte {
	return m.GetMappedMemoryDevice(addr).ReadByte(addr)
}

func (m *Map) WriteByte(addr Pointer, data byte) {
	m.GetMappedMemoryDevice(addr).WriteByte(addr, data)
}

// ReadWord performs a little endian 32-bit read. Word accesses are
// forwarded to devices implementing WordMemory.
func (m *Map) ReadWord(addr Pointer) uint32 {
	dev := m.GetMappedMemoryDevice(addr)
	if wm, ok := dev.(WordMemory); ok {
		return wm.ReadWord(addr)
	}
	return uint32(dev.ReadByte(addr)) |
		uint32(dev.ReadByte(addr+1))<<8 |
		uint32(dev.ReadByte(addr+2))<<16 |
		uint32(dev.ReadByte(addr+3))<<24
}

func (m *Map) WriteWord(addr Pointer, data uint32) {
	dev := m.GetMappedMemoryDevice(addr)
	if wm, ok := dev.(WordMemory); ok {
		wm.WriteWord(addr, data)
		return
	}
	dev.WriteByte(addr, byte(data))
	dev.WriteByte(addr+1, byte(data>>8))
	dev.WriteByte(addr+2, byte(data>>16))
	dev.WriteByte(addr+3, byte(data>>24))
}

// Read copies len(p) bytes starting at addr into p.
func (m *Map) Read(addr Pointer, p []byte) {
	for i := range p {
		p[i] = m.ReadByte(addr + Pointer(i))
	}
}

// Write copies p into memory starting at addr.
func (m *Map) Write(addr Pointer, p []byte) {
	for i, v := range p {
		m.WriteByte(addr+Pointer(i), v)
	}
}

// Equal reports if the memory starting at addr holds exactly p.
func (m *Map) Equal(addr Pointer, p []byte) bool {
	for i, v := range p {
		if m.ReadByte(addr+Pointer(i)) != v {
			return false
		}
	}
	return true
}
