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

package gpio

import (
	"fmt"
	"strconv"
)

const (
	PinAddr = 0
	PinData = 16
	PinExt0 = 24
	PinExt1 = 25
	PinExt2 = 26
	PinCE   = 27
	PinOE   = 28
	PinWR   = 29
	NumPins = 30
)

// Pins is a snapshot of all pin levels, one bit per pin.
type Pins uint32

const (
	AddrMask Pins = 0xFFFF << PinAddr
	DataMask Pins = 0xFF << PinData
	ExtMask  Pins = 7 << PinExt0
	CE       Pins = 1 << PinCE
	OE       Pins = 1 << PinOE
	WR       Pins = 1 << PinWR
	CtrlMask      = CE | OE | WR
	AllMask  Pins = 1<<NumPins - 1
)

// Idle is the bus with no chip selected and no strobe asserted.
const Idle = CtrlMask

func MakePins(addr uint16, data byte) Pins {
	return Pins(addr)<<PinAddr | Pins(data)<<PinData
}

func (p Pins) Addr() uint16 {
	return uint16(p >> PinAddr)
}

func (p Pins) Data() byte {
	return byte(p >> PinData)
}

func (p Pins) Ext() byte {
	return byte(p>>PinExt0) & 7
}

// Selected reports if CE is asserted (low).
func (p Pins) Selected() bool {
	return p&CE == 0
}

// Reading reports if the chip is selected and OE is asserted.
func (p Pins) Reading() bool {
	return p&(CE|OE) == 0
}

// Writing reports if the chip is selected and WR is asserted.
func (p Pins) Writing() bool {
	return p&(CE|WR) == 0
}

// Strobed reports if the chip is selected with either strobe asserted.
func (p Pins) Strobed() bool {
	return p.Selected() && p&(OE|WR) != OE|WR
}

func (p Pins) String() string {
	return fmt.Sprintf("%08x", uint32(p))
}

var pinNames = []struct {
	name string
	pin  int
}{
	{"ce", PinCE},
	{"oe", PinOE},
	{"wr", PinWR},
	{"ext0", PinExt0},
	{"ext1", PinExt1},
	{"ext2", PinExt2},
}

// PinByName resolves a pin name like "a3", "d7", "ext1" or "oe", or a pin number.
func PinByName(s string) (int, bool) {
	for _, n := range pinNames {
		if n.name == s {
			return n.pin, true
		}
	}
	if len(s) > 1 && (s[0] == 'a' || s[0] == 'd') {
		if n, err := strconv.Atoi(s[1:]); err == nil {
			if s[0] == 'a' && n >= 0 && n < 16 {
				return PinAddr + n, true
			}
			if s[0] == 'd' && n >= 0 && n < 8 {
				return PinData + n, true
			}
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < NumPins {
		return n, true
	}
	return 0, false
}

// PinNames lists the symbolic pin names in pin order.
func PinNames() []string {
	names := make([]string, NumPins)
	for i := 0; i < 16; i++ {
		names[PinAddr+i] = fmt.Sprintf("a%d", i)
	}
	for i := 0; i < 8; i++ {
		names[PinData+i] = fmt.Sprintf("d%d", i)
	}
	for _, n := range pinNames {
		names[n.pin] = n.name
	}
	return names
}
