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

package romemu

import (
	"context"
	"testing"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator"
	"github.com/andreas-jonsson/virtualrom/emulator/host"
	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/pio"
	"github.com/spf13/afero"
)

func setup(t *testing.T) (*emulator.Board, memory.Pointer, context.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	b, err := emulator.New(emulator.Config{Fs: afero.NewMemMapFs(), ClearMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })

	image, err := b.SRAM.Allocate(".memimage.rom", 0x10000, 0x10000)
	if err != nil {
		t.Fatal(err)
	}
	return b, image, ctx
}

func TestServe(t *testing.T) {
	b, image, ctx := setup(t)
	for a := 0; a < 0x10000; a += 0x101 {
		b.Mem.WriteByte(image+memory.Pointer(a), byte(a>>4))
	}

	if _, err := Init(ctx, b.PIO[0], b.DMA, image); err != nil {
		t.Fatal(err)
	}

	h := &host.Host{Bus: b.GPIO, AccessTime: time.Second}
	for a := 0; a < 0x10000; a += 0x101 {
		v, err := h.Read(ctx, uint16(a))
		if err != nil {
			t.Fatal(err)
		}
		if v != byte(a>>4) {
			t.Fatalf("read %04x returned %02x", a, v)
		}
	}

	// Same address twice in a row.
	b.Mem.WriteByte(image+0x10, 0x77)
	for i := 0; i < 2; i++ {
		if v, err := h.Read(ctx, 0x10); err != nil || v != 0x77 {
			t.Fatalf("got %02x, %v", v, err)
		}
	}

	t.Run("Write", func(t *testing.T) {
		if err := h.Write(ctx, 0x10, 0x11); err != nil {
			t.Fatal(err)
		}
		if v, _ := h.Read(ctx, 0x10); v != 0x77 {
			t.Errorf("host write changed the ROM image: %02x", v)
		}
	})

	if b.GPIO.Misses() != 0 {
		t.Errorf("%d timing misses", b.GPIO.Misses())
	}
}

func TestAlignment(t *testing.T) {
	b, image, ctx := setup(t)
	if _, err := Init(ctx, b.PIO[0], b.DMA, image+4); err == nil {
		t.Error("unaligned image should fail")
	}
}

func TestExhaustion(t *testing.T) {
	b, image, ctx := setup(t)
	for i := 0; i < pio.NumStateMachines-1; i++ {
		b.PIO[0].ClaimUnused(true)
	}
	if _, err := Init(ctx, b.PIO[0], b.DMA, image); err != pio.ErrNoStateMachine {
		t.Errorf("got %v", err)
	}
}
