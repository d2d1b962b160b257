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

package store

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator"
	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/clocks"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/flash"
	"github.com/andreas-jonsson/virtualrom/firmware/capture"
	"github.com/spf13/afero"
)

type testBoard struct {
	*emulator.Board
	store *Store
	image memory.Pointer
}

func newBoard(t *testing.T, fs afero.Fs) *testBoard {
	b, err := emulator.New(emulator.Config{Fs: fs, ClearMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })

	image, err := b.SRAM.Allocate(".memimage.rom", BankSize, BankSize)
	if err != nil {
		t.Fatal(err)
	}
	loopPC, err := b.SRAM.Allocate(".time_critical.test", 0x100, 4)
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(Store{
		Mem:       b.Mem,
		Flash:     b.Flash,
		DMA:       b.DMA,
		Clocks:    b.Clocks,
		FlashWait: time.Millisecond,
		Guard:     &Guard{Core: b.Cores.Cores[0], Lockout: b.Cores.Lockout},
	}, b.SRAM)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Cores.LaunchCore1(capture.Idle(b.Cores.Lockout, loopPC)); err != nil {
		t.Fatal(err)
	}
	return &testBoard{b, s, image}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLayout(t *testing.T) {
	c := DefaultConfig()
	c.Mode = ModeClone
	c.Bank = 2
	c.DumpLines = 5
	c.GPIO.Dir = 0x01000000
	c.Watch[0] = 0x80

	data, err := c.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != ConfigWriteSize || ConfigWriteSize != 8448 {
		t.Fatalf("record is %d bytes", len(data))
	}

	le := binary.LittleEndian
	if string(data[:16]) != Magic ||
		le.Uint32(data[16:]) != 1 ||
		le.Uint32(data[20:]) != 2 ||
		le.Uint32(data[24:]) != 5 ||
		le.Uint32(data[28:]) != 0x01000000 ||
		le.Uint32(data[40:]) != DefaultConfig().GPIO.PullDown ||
		data[44] != 0x80 {
		t.Errorf("unexpected layout % x", data[:48])
	}

	var back Config
	if err := back.UnmarshalBinary(data); err != nil || back != c {
		t.Errorf("round trip failed: %v", err)
	}
}

func TestMode(t *testing.T) {
	for _, m := range []Mode{ModeEmulator, ModeClone} {
		if p, err := ParseMode(m.String()); err != nil || p != m {
			t.Errorf("%v did not parse back", m)
		}
	}
	if _, err := ParseMode("bootsel"); err == nil {
		t.Error("unknown mode should fail")
	}
	if Mode(7).String() != "unknown (7)" {
		t.Errorf("got %v", Mode(7))
	}
}

func TestBankOffset(t *testing.T) {
	if BankOffset(0) != 30*flash.BlockSize || BankOffset(3) != 27*flash.BlockSize {
		t.Error("banks should sit in descending blocks below the config")
	}
	if CheckBank(4) == nil || CheckBank(-1) == nil || CheckBank(3) != nil {
		t.Error("bank range check failed")
	}
}

func TestConfig(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()
	b := newBoard(t, fs)

	if _, ok := b.store.Load(ctx); ok {
		t.Fatal("blank flash should not hold a valid config")
	}

	c := DefaultConfig()
	c.Bank = 3
	c.Mode = ModeClone
	c.DumpLines = 7
	c.GPIO.Dir = 0x03000000
	c.GPIO.PullDown = 0x04000000
	c.Watch[0] = 0x81
	c.Watch[len(c.Watch)-1] = 0xF0
	if !b.store.SaveInitial(ctx, c) {
		t.Fatal("initial save failed")
	}
	if got, ok := b.store.Load(ctx); !ok || got != c {
		t.Errorf("record changed on the round trip, %v", ok)
	}

	c.Bank = 1
	c.Watch[100] = 0x55
	if !b.store.SaveSlow(ctx, c) {
		t.Fatal("save failed")
	}
	if b.Clocks.SysClockKHz() != clocks.FreqHighKHz {
		t.Error("slow save should return to the high clock")
	}
	if b.Cores.Lockout.Pauses() == 0 {
		t.Error("save should pause the companion core")
	}
	if b.Flash.Violations() != 0 {
		t.Errorf("%d flash reads while busy", b.Flash.Violations())
	}

	b.Close()
	b2 := newBoard(t, fs)
	if got, ok := b2.store.Load(ctx); !ok || got != c {
		t.Errorf("config did not persist, got bank %d", got.Bank)
	}
}

func TestHighClock(t *testing.T) {
	ctx := testContext(t)
	b := newBoard(t, afero.NewMemMapFs())

	b.Clocks.SetSysClockKHz(clocks.FreqHighKHz)
	if b.store.Save(ctx, DefaultConfig()) {
		t.Error("save at high clock should fail verification")
	}
	if !b.store.SaveSlow(ctx, DefaultConfig()) {
		t.Error("slow save should succeed")
	}
}

func TestBanks(t *testing.T) {
	ctx := testContext(t)
	b := newBoard(t, afero.NewMemMapFs())
	b.Clocks.SetSysClockKHz(clocks.FreqHighKHz)

	pattern := make([]byte, BankSize)
	for i := range pattern {
		pattern[i] = byte(i * 7)
	}
	b.Mem.Write(b.image, pattern)

	if !b.store.SaveBankSlow(ctx, 2, b.image) {
		t.Fatal("save bank failed")
	}

	if !b.store.ClearImage(ctx, b.image) {
		t.Fatal("clear failed")
	}
	if b.Mem.ReadWord(b.image+0x100) != 0 {
		t.Error("image not cleared")
	}

	if !b.store.LoadBankSlow(ctx, 2, b.image) || !b.Mem.Equal(b.image, pattern) {
		t.Error("bank did not load back")
	}

	h, err := b.store.LoadBankAsync(1, b.image)
	if err != nil {
		t.Fatal(err)
	}
	if !b.store.AwaitAsync(ctx, h) || b.Mem.ReadByte(b.image+10) != 0xFF {
		t.Error("erased bank should load as 0xFF")
	}

	if !b.store.EraseBankSlow(ctx, 2) {
		t.Fatal("erase failed")
	}
	if !b.store.LoadBank(ctx, 2, b.image) || b.Mem.ReadByte(b.image+1) != 0xFF {
		t.Error("bank not erased")
	}

	if b.store.LoadBank(ctx, NumBanks, b.image) || b.store.SaveBank(ctx, -1, b.image) || b.store.EraseBank(ctx, 9) {
		t.Error("invalid banks should fail")
	}
	if _, err := b.store.LoadBankAsync(NumBanks, b.image); err == nil {
		t.Error("invalid async bank should fail")
	}
}

func TestGuardWithoutVictim(t *testing.T) {
	b, err := emulator.New(emulator.Config{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	g := &Guard{Core: b.Cores.Cores[0], Lockout: b.Cores.Lockout}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ran := false
	if g.Run(ctx, func() bool { ran = true; return true }) || ran {
		t.Error("guard should not run without a parked companion")
	}
	if !b.Cores.Cores[0].InterruptsEnabled() {
		t.Error("interrupts should be restored")
	}
}
