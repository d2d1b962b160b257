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

package flash

import (
	"encoding/binary"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	Base       = memory.Pointer(0x10000000) // XIP window
	Size       = 0x200000                   // 2MB
	SectorSize = 0x1000
	PageSize   = 0x100
	BlockSize  = 0x10000
)

var ErrAlignment = errors.New("flash range is not aligned")

// Clock tells the flash controller if it can be operated at the current system clock.
type Clock interface {
	FlashSafe() bool
}

// Device is a NOR flash chip behind an execute-in-place window.
// The image is persisted to Path on Fs.
type Device struct {
	Fs    afero.Fs
	Path  string
	Clock Clock

	EraseTime   time.Duration // Per sector.
	ProgramTime time.Duration // Per page.

	lock sync.RWMutex
	mem  [Size]byte
	fp   afero.File

	busy       atomic.Bool
	violations atomic.Int64
}

func (m *Device) Install(p *memory.Map) error {
	if m.Fs == nil {
		m.Fs = afero.NewMemMapFs()
	}
	if m.Path == "" {
		m.Path = "flash.bin"
	}

	var err error
	if m.fp, err = m.Fs.OpenFile(m.Path, os.O_RDWR|os.O_CREATE, 0644); err != nil {
		return errors.Wrap(err, "could not open flash image")
	}

	n, err := io.ReadFull(m.fp, m.mem[:])
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		log.Printf("Flash image %s is %d bytes, formatting.", m.Path, n)
		for i := range m.mem {
			m.mem[i] = 0xFF
		}
		if _, err := m.fp.WriteAt(m.mem[:], 0); err != nil {
			return errors.Wrap(err, "could not format flash image")
		}
	} else if err != nil {
		return errors.Wrap(err, "could not read flash image")
	}
	return p.InstallMemoryDevice(m, Base, Base+Size-1)
}

func (m *Device) Name() string {
	return "Flash"
}

func (m *Device) Reset() {
}

func (m *Device) Close() error {
	if m.fp == nil {
		return nil
	}
	err := m.fp.Close()
	m.fp = nil
	return err
}

// Busy reports if an erase or program operation is in progress.
func (m *Device) Busy() bool {
	return m.busy.Load()
}

// Violations returns the number of XIP reads performed while the flash was busy.
func (m *Device) Violations() int64 {
	return m.violations.Load()
}

func (m *Device) safe(op string, off, n uint32) bool {
	if m.Clock != nil && !m.Clock.FlashSafe() {
		log.Printf("Flash: %s 0x%X+0x%X dropped, system clock too high", op, off, n)
		return false
	}
	return true
}

func (m *Device) persist(off, n uint32) error {
	if m.fp == nil {
		return nil
	}
	_, err := m.fp.WriteAt(m.mem[off:off+n], int64(off))
	return errors.Wrap(err, "could not write flash image")
}

// RangeErase sets n bytes starting at flash offset off to 0xFF.
// Both must be sector aligned.
func (m *Device) RangeErase(off, n uint32) error {
	if off%SectorSize != 0 || n%SectorSize != 0 || off+n > Size {
		return errors.Wrapf(ErrAlignment, "erase 0x%X+0x%X", off, n)
	}
	if !m.safe("erase", off, n) {
		return nil
	}

	m.busy.Store(true)
	defer m.busy.Store(false)
	time.Sleep(m.EraseTime * time.Duration(n/SectorSize))

	m.lock.Lock()
	defer m.lock.Unlock()

	for i := off; i < off+n; i++ {
		m.mem[i] = 0xFF
	}
	return m.persist(off, n)
}

// RangeProgram programs data at flash offset off. Programming can only
// clear bits. Offset and length must be page aligned.
func (m *Device) RangeProgram(off uint32, data []byte) error {
	n := uint32(len(data))
	if off%PageSize != 0 || n%PageSize != 0 || off+n > Size {
		return errors.Wrapf(ErrAlignment, "program 0x%X+0x%X", off, n)
	}
	if !m.safe("program", off, n) {
		return nil
	}

	m.busy.Store(true)
	defer m.busy.Store(false)
	time.Sleep(m.ProgramTime * time.Duration(n/PageSize))

	m.lock.Lock()
	defer m.lock.Unlock()

	for i, v := range data {
		m.mem[off+uint32(i)] &= v
	}
	return m.persist(off, n)
}

// ReadAt copies flash content without going through XIP.
func (m *Device) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= Size {
		return 0, io.EOF
	}
	m.lock.RLock()
	n := copy(p, m.mem[off:])
	m.lock.RUnlock()

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Device) ReadByte(addr memory.Pointer) byte {
	if m.busy.Load() {
		m.violations.Add(1)
		log.Printf("Flash: XIP read at %v during flash operation", addr)
		return 0xFF
	}
	m.lock.RLock()
	v := m.mem[addr-Base]
	m.lock.RUnlock()
	return v
}

func (m *Device) WriteByte(addr memory.Pointer, data byte) {
}

func (m *Device) ReadWord(addr memory.Pointer) uint32 {
	if m.busy.Load() {
		m.violations.Add(1)
		log.Printf("Flash: XIP read at %v during flash operation", addr)
		return 0xFFFFFFFF
	}
	addr &^= 3
	m.lock.RLock()
	v := binary.LittleEndian.Uint32(m.mem[addr-Base:])
	m.lock.RUnlock()
	return v
}

func (m *Device) WriteWord(addr memory.Pointer, data uint32) {
}
