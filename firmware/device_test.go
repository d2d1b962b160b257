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
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator"
	"github.com/andreas-jonsson/virtualrom/emulator/host"
	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualrom/firmware/store"
	"github.com/spf13/afero"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// boot powers on a board on fs and boots the firmware. The board is
// closed by the returned function, which is safe to call twice.
func boot(t *testing.T, ctx context.Context, fs afero.Fs, chip gpio.Chip) (*Device, func()) {
	b, err := emulator.New(emulator.Config{Fs: fs, ClearMemory: true, Chip: chip})
	if err != nil {
		t.Fatal(err)
	}

	closed := false
	shutdown := func() {
		if !closed {
			closed = true
			b.Close()
		}
	}
	t.Cleanup(shutdown)

	d, err := New(b, Options{FlashWait: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Boot(ctx); err != nil {
		t.Fatal(err)
	}
	return d, shutdown
}

func rebooted(d *Device) bool {
	select {
	case <-d.RebootRequested():
		return true
	default:
		return false
	}
}

func TestBootBlank(t *testing.T) {
	ctx := testContext(t)
	d, _ := boot(t, ctx, afero.NewMemMapFs(), nil)

	if d.Mode() != store.ModeEmulator || d.Config.Bank != 0 || d.Config.DumpLines != store.DefaultDumpLines {
		t.Errorf("unexpected default config %+v", d.Config)
	}
	if _, ok := d.Store.Load(ctx); !ok {
		t.Error("initial configuration was not saved")
	}
	if d.DeviceName() != "rom" {
		t.Errorf("default device is %s", d.DeviceName())
	}
	if rebooted(d) {
		t.Error("reboot requested after boot")
	}
}

func TestEmulatorBus(t *testing.T) {
	ctx := testContext(t)
	d, _ := boot(t, ctx, afero.NewMemMapFs(), nil)
	mem := d.Board.Mem

	mem.WriteByte(d.ROM()+0x1234, 0x5A)
	h := &host.Host{Bus: d.Board.GPIO, AccessTime: time.Second}

	v, err := h.Read(ctx, 0x1234)
	if err != nil || v != 0x5A {
		t.Fatalf("read returned %02x, %v", v, err)
	}

	if err := h.Write(ctx, 0x4321, 0xA5); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for mem.ReadByte(d.RAM()+0x4321) != 0xA5 {
		if time.Now().After(deadline) {
			t.Fatal("write never reached the RAM image")
		}
		time.Sleep(time.Millisecond)
	}
	if mem.ReadByte(d.ROM()+0x4321) != 0xFF {
		t.Error("host write changed the ROM image")
	}
}

func TestWriteAfterRead(t *testing.T) {
	ctx := testContext(t)
	d, _ := boot(t, ctx, afero.NewMemMapFs(), nil)
	mem := d.Board.Mem
	h := &host.Host{Bus: d.Board.GPIO, AccessTime: time.Second}

	mem.WriteByte(d.ROM()+0x1234, 0x5A)
	for i := 0; i < 8; i++ {
		a := 0x4320 + uint16(i)
		if v, err := h.Read(ctx, 0x1234); err != nil || v != 0x5A {
			t.Fatalf("read returned %02x, %v", v, err)
		}
		if err := h.Write(ctx, a, 0xA0+byte(i)); err != nil {
			t.Fatal(err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for mem.ReadByte(d.RAM()+memory.Pointer(a)) != 0xA0+byte(i) {
			if time.Now().After(deadline) {
				t.Fatalf("ram[%04x] = %02x", a, mem.ReadByte(d.RAM()+memory.Pointer(a)))
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestCaptureLog(t *testing.T) {
	ctx := testContext(t)
	d, _ := boot(t, ctx, afero.NewMemMapFs(), nil)
	h := &host.Host{Bus: d.Board.GPIO, AccessTime: time.Second}

	// The capture loop arms the hardware ring on its own time, so write
	// until something shows up.
	d.EnableRange(0x20, 0x20)
	deadline := time.Now().Add(5 * time.Second)
	for d.IsEmpty() {
		if time.Now().After(deadline) {
			t.Fatal("capture loop never started")
		}
		h.Write(ctx, 0x20, 0)
		time.Sleep(time.Millisecond)
	}
	d.DisableRange(0x20, 0x20)
	time.Sleep(10 * time.Millisecond)
	d.CaptureStart()

	if !d.IsEmpty() {
		t.Fatal("log not empty after start")
	}

	d.EnableRange(0x10, 0x1F)
	if r := d.ListRanges(0, 0xFFFF); len(r) != 1 || r[0].Start != 0x10 || r[0].End != 0x1F {
		t.Errorf("ranges %v", r)
	}

	h.Write(ctx, 0x0005, 0x11)
	h.Write(ctx, 0x0015, 0xAA)
	h.Read(ctx, 0x0020)
	h.Read(ctx, 0x001F)

	var got []string
	deadline = time.Now().Add(2 * time.Second)
	for len(got) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("got %v", got)
		}
		if e, ok := d.Pop(); ok {
			got = append(got, e.String())
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	if got[0] != "W:0015:aa" || !strings.HasPrefix(got[1], "R:001f:") {
		t.Errorf("got %v", got)
	}

	t.Run("SaveWatch", func(t *testing.T) {
		if !d.SaveWatch(ctx) {
			t.Fatal("save failed")
		}
		cfg, ok := d.Store.Load(ctx)
		if !ok || cfg.Watch[0x10/8] != 0xFF || cfg.Watch[0] != 0 {
			t.Errorf("watch not persisted: %x", cfg.Watch[:8])
		}
	})
}

func TestBankPersistence(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()

	d, shutdown := boot(t, ctx, fs, nil)
	if ok, err := d.SelectBank(ctx, 5); ok || err == nil {
		t.Error("bank 5 accepted")
	}
	if ok, err := d.SelectBank(ctx, 2); !ok || err != nil {
		t.Fatal("select failed", err)
	}
	d.Edit(nil, 0xDE)
	d.Edit(nil, 0xAD)
	if ok, _ := d.SaveBank(ctx, 2); !ok {
		t.Fatal("save failed")
	}
	shutdown()

	d, _ = boot(t, ctx, fs, nil)
	if d.Config.Bank != 2 {
		t.Fatalf("booted bank %d", d.Config.Bank)
	}
	if d.Peek(0) != 0xDE || d.Peek(1) != 0xAD {
		t.Errorf("bank content %02x %02x", d.Peek(0), d.Peek(1))
	}

	t.Run("Load", func(t *testing.T) {
		if ok, _ := d.LoadBank(ctx, 0); !ok {
			t.Fatal("load failed")
		}
		if d.Peek(0) != 0xFF {
			t.Errorf("erased bank reads %02x", d.Peek(0))
		}
		if ok, _ := d.LoadBank(ctx, 2); !ok || d.Peek(1) != 0xAD {
			t.Error("reload failed")
		}
	})

	t.Run("Erase", func(t *testing.T) {
		if ok, _ := d.EraseBank(ctx, 2); !ok {
			t.Fatal("erase failed")
		}
		d.LoadBank(ctx, 2)
		if d.Peek(0) != 0xFF {
			t.Errorf("bank not erased: %02x", d.Peek(0))
		}
	})
}

func TestDump(t *testing.T) {
	ctx := testContext(t)
	d, _ := boot(t, ctx, afero.NewMemMapFs(), nil)

	d.Fill(0x100, 0x10F, 0)
	for i, c := range []byte("Hello\x01") {
		d.Poke(0x100+uint16(i), c)
	}

	var buf bytes.Buffer
	next := d.Dump(&buf, 0x100, 1)
	want := "0100  48 65 6c 6c 6f 01 00 00 00 00 00 00 00 00 00 00  Hello...........\n"
	if buf.String() != want {
		t.Errorf("got %q", buf.String())
	}
	if next != 0x110 {
		t.Errorf("next address %04x", next)
	}

	buf.Reset()
	d.Dump(&buf, 0xFFF0, 2)
	if lines := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(lines) != 2 || !strings.HasPrefix(lines[1], "0000 ") {
		t.Errorf("dump did not wrap: %q", buf.String())
	}

	t.Run("Next", func(t *testing.T) {
		d.Config.DumpLines = 1
		addr := uint16(0x200)
		buf.Reset()
		d.DumpNext(&buf, &addr)
		d.DumpNext(&buf, nil)
		if lines := strings.Split(buf.String(), "\n"); !strings.HasPrefix(lines[1], "0300 ") {
			t.Errorf("got %q", buf.String())
		}
	})

	t.Run("Lines", func(t *testing.T) {
		if _, err := d.SetDumpLines(ctx, 0, false); err != ErrBadLineCount {
			t.Errorf("got %v", err)
		}
		if ok, _ := d.SetDumpLines(ctx, 8, true); !ok {
			t.Fatal("save failed")
		}
		if cfg, _ := d.Store.Load(ctx); cfg.DumpLines != 8 {
			t.Errorf("stored %d lines", cfg.DumpLines)
		}
	})
}

func TestFillMove(t *testing.T) {
	ctx := testContext(t)
	d, _ := boot(t, ctx, afero.NewMemMapFs(), nil)

	if err := d.Fill(0x10, 0x1F, 0xAA); err != nil {
		t.Fatal(err)
	}
	// A blank bank loads as 0xFF.
	if d.Peek(0x0F) != 0xFF || d.Peek(0x10) != 0xAA || d.Peek(0x1F) != 0xAA || d.Peek(0x20) != 0xFF {
		t.Error("fill is not inclusive of both ends")
	}
	if d.Fill(2, 1, 0) != ErrBadRange {
		t.Error("reversed range accepted")
	}

	pattern := func(base uint16) {
		for i := 0; i < 16; i++ {
			d.Poke(base+uint16(i), byte(i+1))
		}
	}
	check := func(base uint16) {
		t.Helper()
		for i := 0; i < 16; i++ {
			if v := d.Peek(base + uint16(i)); v != byte(i+1) {
				t.Fatalf("%04x = %02x", base+uint16(i), v)
			}
		}
	}

	pattern(0x200)
	d.Move(0x200, 0x20F, 0x204)
	check(0x204)

	pattern(0x300)
	d.Move(0x300, 0x30F, 0x2FC)
	check(0x2FC)

	t.Run("Device", func(t *testing.T) {
		if err := d.SelectDevice("ram"); err != nil {
			t.Fatal(err)
		}
		d.Poke(0, 0x42)
		if d.Board.Mem.ReadByte(d.RAM()) != 0x42 || d.DeviceName() != "ram" {
			t.Error("ram not selected")
		}
		if d.SelectDevice("flash") == nil {
			t.Error("unknown device accepted")
		}
		if d.DeviceName() != "ram" {
			t.Error("failed select changed the device")
		}
	})

	t.Run("EditCursor", func(t *testing.T) {
		d.SelectDevice("rom")
		addr := uint16(0xFFFF)
		d.Edit(&addr, 0x01)
		d.Edit(nil, 0x02)
		if a, v := d.EditCursor(); a != 1 || v != 0xFF {
			t.Errorf("cursor %04x %02x", a, v)
		}
		if d.Peek(0xFFFF) != 0x01 || d.Peek(0) != 0x02 {
			t.Error("edit did not wrap")
		}
	})
}

func TestClone(t *testing.T) {
	ctx := testContext(t)
	fs := afero.NewMemMapFs()

	d, shutdown := boot(t, ctx, fs, nil)
	if _, err := d.Clone(ctx, 0, 1, &bytes.Buffer{}); err != ErrNotCloneMode {
		t.Errorf("clone in emulator mode: %v", err)
	}
	if ok, err := d.SwitchMode(ctx, store.ModeClone); !ok || err != nil {
		t.Fatal("switch failed", err)
	}
	if !rebooted(d) {
		t.Fatal("switching mode did not reboot")
	}
	shutdown()

	chip := make(host.ImageChip, ImageSize)
	for i := range chip {
		chip[i] = byte(i * 7)
	}

	d, _ = boot(t, ctx, fs, chip)
	if d.Mode() != store.ModeClone {
		t.Fatalf("booted in %v", d.Mode())
	}

	var out bytes.Buffer
	ok, err := d.Clone(ctx, 0, 2, &out)
	if !ok || err != nil {
		t.Fatalf("clone failed: %v\n%s", err, out.String())
	}
	if strings.Count(out.String(), "OK") != 2 {
		t.Errorf("output %q", out.String())
	}
	for _, a := range []uint16{0, 1, 0x7FFF, 0xFFFF} {
		if v := d.Board.Mem.ReadByte(d.ROM() + memory.Pointer(a)); v != chip[a] {
			t.Errorf("rom[%04x] = %02x", a, v)
		}
	}
}

func TestInit(t *testing.T) {
	ctx := testContext(t)
	d, _ := boot(t, ctx, afero.NewMemMapFs(), nil)

	if _, err := d.Init(ctx, "bogus"); err == nil {
		t.Error("bogus parameter accepted")
	}

	d.Poke(0, 0x12)
	d.SaveBank(ctx, 1)
	if ok, err := d.Init(ctx, "rom"); !ok || err != nil {
		t.Fatal("init rom failed", err)
	}
	if rebooted(d) {
		t.Error("init rom should not reboot")
	}
	d.LoadBank(ctx, 1)
	if d.Peek(0) != 0xFF {
		t.Error("bank survived init")
	}

	d.Config.DumpLines = 3
	if !d.ConfigSave(ctx) {
		t.Fatal("config save failed")
	}
	if ok, _ := d.Init(ctx, "config"); !ok || !rebooted(d) {
		t.Fatal("init config failed or did not reboot")
	}
	d.Config.DumpLines = 9
	if !d.ConfigLoad(ctx) || d.Config.DumpLines != store.DefaultDumpLines {
		t.Errorf("config not reset: %d lines", d.Config.DumpLines)
	}
}
