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

package capture

import (
	"fmt"

	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
)

type Kind uint8

const (
	None Kind = iota
	Write
	Read
	Unknown
)

const kindChars = "-WRX"

func (k Kind) String() string {
	return kindChars[k&3 : k&3+1]
}

// Event is one observed bus access. It is the raw pin snapshot taken
// while the access was strobed: address in bits 0-15, data in 16-23,
// EXT in 24-26, CE in 27 and the OE/WR levels in 28-29.
type Event uint32

func MakeEvent(addr uint16, data byte, kind Kind) Event {
	return Event(uint32(addr) | uint32(data)<<16 | uint32(kind&3)<<gpio.PinOE)
}

func (e Event) Address() uint16 {
	return uint16(e)
}

func (e Event) Data() byte {
	return byte(e >> gpio.PinData)
}

func (e Event) Ext() byte {
	return byte(e>>gpio.PinExt0) & 7
}

func (e Event) Kind() Kind {
	return Kind(e>>gpio.PinOE) & 3
}

func (e Event) String() string {
	return fmt.Sprintf("%v:%04x:%02x", e.Kind(), e.Address(), e.Data())
}
