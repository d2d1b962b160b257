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

package host

import (
	"context"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/pkg/errors"
)

// DefaultAccessTime is how long a read waits for the chip to drive data.
const DefaultAccessTime = 100 * time.Millisecond

// Host is the system the emulated chip is plugged into. It masters the
// external bus with ordinary read and write cycles.
type Host struct {
	Bus        *gpio.Device
	AccessTime time.Duration
}

func (h *Host) accessTime() time.Duration {
	if h.AccessTime <= 0 {
		return DefaultAccessTime
	}
	return h.AccessTime
}

// Read performs a read cycle at a. On a timing miss the floating bus
// value 0xFF is returned together with the error.
func (h *Host) Read(ctx context.Context, a uint16) (byte, error) {
	pins := gpio.MakePins(a, 0)
	if err := h.Bus.SetHost(ctx, pins|gpio.OE|gpio.WR, false); err != nil {
		return 0xFF, err
	}
	if err := h.Bus.SetHost(ctx, pins|gpio.WR, false); err != nil {
		return 0xFF, err
	}

	v, serr := h.Bus.Sample(ctx, h.accessTime())

	if err := h.Bus.SetHost(ctx, pins|gpio.Idle, false); err != nil {
		return 0xFF, err
	}
	return v, errors.Wrapf(serr, "read %04x", a)
}

// Write performs a write cycle storing v at a.
func (h *Host) Write(ctx context.Context, a uint16, v byte) error {
	pins := gpio.MakePins(a, v)
	if err := h.Bus.SetHost(ctx, pins|gpio.OE|gpio.WR, true); err != nil {
		return err
	}
	if err := h.Bus.SetHost(ctx, pins|gpio.OE, true); err != nil {
		return err
	}
	if err := h.Bus.SetHost(ctx, pins|gpio.OE|gpio.WR, true); err != nil {
		return err
	}
	return h.Bus.SetHost(ctx, pins|gpio.Idle, false)
}

// ReadRange reads len(p) bytes starting at a.
func (h *Host) ReadRange(ctx context.Context, a uint16, p []byte) error {
	for i := range p {
		v, err := h.Read(ctx, a+uint16(i))
		if err != nil {
			return err
		}
		p[i] = v
	}
	return nil
}
