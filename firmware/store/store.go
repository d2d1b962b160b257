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

// Package store keeps the configuration and the bank images in flash.
//
// Every mutation is erase, program and then a read back through the XIP
// window. Results are reported as booleans and nothing is retried.
package store

import (
	"context"
	"log"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/clocks"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/dma"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/flash"
	"github.com/pkg/errors"
)

const (
	NumBanks  = 4
	BankBlock = 30
	BankSize  = 0x10000

	DefaultFlashWait = 500 * time.Millisecond
)

var ErrBadBank = errors.New("illegal bank number")

// BankOffset returns the flash offset of bank n. Banks sit in descending
// blocks below the configuration.
func BankOffset(n int) uint32 {
	return uint32(BankBlock-n) * flash.BlockSize
}

func CheckBank(n int) error {
	if n < 0 || n >= NumBanks {
		return errors.Wrapf(ErrBadBank, "%d", n)
	}
	return nil
}

// Allocator hands out resident memory.
type Allocator interface {
	Allocate(name string, size, align uint32) (memory.Pointer, error)
}

type Store struct {
	Mem    *memory.Map
	Flash  *flash.Device
	DMA    *dma.Device
	Clocks *clocks.Device
	Guard  *Guard

	// FlashWait is the settling delay around clock changes.
	FlashWait time.Duration

	record memory.Pointer
	zero   memory.Pointer
	page   memory.Pointer
}

// New allocates the resident buffers of the store.
func New(s Store, alloc Allocator) (*Store, error) {
	var err error
	if s.record, err = alloc.Allocate(".noinit.config", ConfigWriteSize, 4); err != nil {
		return nil, err
	}
	if s.zero, err = alloc.Allocate(".data.zero", 4, 4); err != nil {
		return nil, err
	}
	if s.page, err = alloc.Allocate(".noinit.init_rom_data", flash.PageSize, 4); err != nil {
		return nil, err
	}
	s.Mem.WriteWord(s.zero, 0)
	return &s, nil
}

func xip(off uint32) memory.Pointer {
	return flash.Base + memory.Pointer(off)
}

// copyWords moves n bytes with a DMA channel and waits for it.
func (s *Store) copyWords(ctx context.Context, dst, src memory.Pointer, n uint32, readIncrement bool) bool {
	ch, _ := s.DMA.ClaimUnused(true)
	defer s.DMA.Unclaim(ch)

	cfg := dma.DefaultConfig(ch)
	cfg.ReadIncrement = readIncrement
	cfg.WriteIncrement = true
	s.DMA.Configure(ch, cfg, dst, src, n/4, true)

	if err := s.DMA.WaitForFinish(ctx, ch); err != nil {
		log.Print("DMA: ", err)
		return false
	}
	return true
}

// Load reads the configuration. The second result is false if the stored
// record is not valid and defaults must be used.
func (s *Store) Load(ctx context.Context) (Config, bool) {
	var c Config
	if !s.copyWords(ctx, s.record, xip(ConfigOffset), ConfigWriteSize, true) {
		return c, false
	}

	buf := make([]byte, ConfigWriteSize)
	s.Mem.Read(s.record, buf)
	if err := c.UnmarshalBinary(buf); err != nil {
		log.Print(err)
		return c, false
	}
	return c, c.Valid()
}

func (s *Store) writeConfig(c Config) ([]byte, bool) {
	data, err := c.MarshalBinary()
	if err != nil {
		log.Print(err)
		return nil, false
	}
	s.Mem.Write(s.record, data)
	return data, true
}

func (s *Store) programConfig(data []byte) bool {
	if err := s.Flash.RangeErase(ConfigOffset, ConfigEraseSize); err != nil {
		log.Print(err)
		return false
	}
	if err := s.Flash.RangeProgram(ConfigOffset, data); err != nil {
		log.Print(err)
		return false
	}
	return s.Mem.Equal(xip(ConfigOffset), data)
}

// Save persists c while the companion core is paused.
func (s *Store) Save(ctx context.Context, c Config) bool {
	data, ok := s.writeConfig(c)
	if !ok {
		return false
	}
	return s.Guard.Run(ctx, func() bool {
		return s.programConfig(data)
	})
}

// SaveInitial persists c without pausing the companion core. It may only
// be used before the companion core is launched.
func (s *Store) SaveInitial(ctx context.Context, c Config) bool {
	data, ok := s.writeConfig(c)
	if !ok {
		return false
	}
	ints := s.Guard.Core.SaveAndDisableInterrupts()
	defer s.Guard.Core.RestoreInterrupts(ints)
	return s.programConfig(data)
}

// slow brackets a flash mutation with a drop to a flash safe clock.
func (s *Store) slow(ctx context.Context, fn func() bool) bool {
	s.Clocks.SetSysClockKHz(clocks.FreqNormalKHz)
	s.sleep(ctx)
	ok := fn()
	s.sleep(ctx)
	s.Clocks.SetSysClockKHz(clocks.FreqHighKHz)
	return ok
}

func (s *Store) sleep(ctx context.Context) {
	select {
	case <-time.After(s.FlashWait):
	case <-ctx.Done():
	}
}

func (s *Store) SaveSlow(ctx context.Context, c Config) bool {
	return s.slow(ctx, func() bool { return s.Save(ctx, c) })
}

// LoadBank copies bank n into image and verifies the copy.
func (s *Store) LoadBank(ctx context.Context, n int, image memory.Pointer) bool {
	if CheckBank(n) != nil {
		return false
	}
	if !s.copyWords(ctx, image, xip(BankOffset(n)), BankSize, true) {
		return false
	}
	return s.sameAsBank(n, image)
}

func (s *Store) LoadBankSlow(ctx context.Context, n int, image memory.Pointer) bool {
	return s.slow(ctx, func() bool { return s.LoadBank(ctx, n, image) })
}

func (s *Store) sameAsBank(n int, image memory.Pointer) bool {
	buf := make([]byte, BankSize)
	s.Mem.Read(image, buf)
	return s.Mem.Equal(xip(BankOffset(n)), buf)
}

// Async is a bank load in flight.
type Async struct {
	ch    int
	bank  int
	image memory.Pointer
}

// LoadBankAsync starts copying bank n into image and returns at once.
// The image must not be used before AwaitAsync returns.
func (s *Store) LoadBankAsync(n int, image memory.Pointer) (Async, error) {
	if err := CheckBank(n); err != nil {
		return Async{}, err
	}

	ch, err := s.DMA.ClaimUnused(true)
	if err != nil {
		return Async{}, err
	}
	cfg := dma.DefaultConfig(ch)
	cfg.WriteIncrement = true
	s.DMA.Configure(ch, cfg, image, xip(BankOffset(n)), BankSize/4, true)
	return Async{ch, n, image}, nil
}

func (s *Store) AwaitAsync(ctx context.Context, h Async) bool {
	defer s.DMA.Unclaim(h.ch)
	if err := s.DMA.WaitForFinish(ctx, h.ch); err != nil {
		log.Print("DMA: ", err)
		return false
	}
	return s.sameAsBank(h.bank, h.image)
}

// ClearImage zero fills image.
func (s *Store) ClearImage(ctx context.Context, image memory.Pointer) bool {
	return s.copyWords(ctx, image, s.zero, BankSize, false)
}

// SaveBank writes image to bank n while the companion core is paused.
func (s *Store) SaveBank(ctx context.Context, n int, image memory.Pointer) bool {
	if CheckBank(n) != nil {
		return false
	}

	data := make([]byte, BankSize)
	s.Mem.Read(image, data)
	off := BankOffset(n)

	return s.Guard.Run(ctx, func() bool {
		if err := s.Flash.RangeErase(off, BankSize); err != nil {
			log.Print(err)
			return false
		}
		if err := s.Flash.RangeProgram(off, data); err != nil {
			log.Print(err)
			return false
		}
		return s.Mem.Equal(xip(off), data)
	})
}

func (s *Store) SaveBankSlow(ctx context.Context, n int, image memory.Pointer) bool {
	return s.slow(ctx, func() bool { return s.SaveBank(ctx, n, image) })
}

// EraseBank erases bank n one sector at a time and programs every page
// with 0xFF, verifying each page. All pages are attempted even after a
// failure.
func (s *Store) EraseBank(ctx context.Context, n int) bool {
	if CheckBank(n) != nil {
		return false
	}

	page := make([]byte, flash.PageSize)
	for i := range page {
		page[i] = 0xFF
	}
	s.Mem.Write(s.page, page)
	s.Mem.Read(s.page, page)
	base := BankOffset(n)

	return s.Guard.Run(ctx, func() bool {
		ok := true
		for sec := uint32(0); sec < BankSize/flash.SectorSize; sec++ {
			off := base + sec*flash.SectorSize
			if err := s.Flash.RangeErase(off, flash.SectorSize); err != nil {
				log.Print(err)
				ok = false
			}
			for p := uint32(0); p < flash.SectorSize/flash.PageSize; p++ {
				poff := off + p*flash.PageSize
				if err := s.Flash.RangeProgram(poff, page); err != nil {
					log.Print(err)
					ok = false
				}
				if !s.Mem.Equal(xip(poff), page) {
					ok = false
				}
			}
		}
		return ok
	})
}

func (s *Store) EraseBankSlow(ctx context.Context, n int) bool {
	return s.slow(ctx, func() bool { return s.EraseBank(ctx, n) })
}
