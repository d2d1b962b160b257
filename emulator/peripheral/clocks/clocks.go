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

package clocks

import (
	"log"
	"sync/atomic"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
)

const (
	FreqNormalKHz   = 250000
	FreqHighKHz     = 400000
	FlashSafeMaxKHz = 266000
)

// Device holds the system clock frequency.
type Device struct {
	khz atomic.Uint32
}

func (c *Device) Install(*memory.Map) error {
	c.Reset()
	return nil
}

func (c *Device) Name() string {
	return "Clocks"
}

func (c *Device) Reset() {
	c.khz.Store(FreqNormalKHz)
}

// SetSysClockKHz changes the system clock. The change is instant.
func (c *Device) SetSysClockKHz(khz uint32) {
	if old := c.khz.Swap(khz); old != khz {
		log.Printf("system clock: %d kHz", khz)
	}
}

func (c *Device) SysClockKHz() uint32 {
	return c.khz.Load()
}

// FlashSafe reports if the flash controller can be operated at the current clock.
func (c *Device) FlashSafe() bool {
	return c.khz.Load() <= FlashSafeMaxKHz
}
