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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/flash"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualrom/firmware/capture"
	"github.com/pkg/errors"
)

const Magic = "RP27C512 VER1.00"

const (
	ConfigBlock      = 31
	ConfigOffset     = ConfigBlock * flash.BlockSize
	ConfigEraseSize  = flash.SectorSize * 3
	ConfigWriteSize  = flash.PageSize * (1 + 32)
	DefaultDumpLines = 16
)

type Mode uint32

const (
	ModeEmulator Mode = iota
	ModeClone
)

var ErrBadMode = errors.New("unknown mode")

func (m Mode) String() string {
	switch m {
	case ModeEmulator:
		return "emulator"
	case ModeClone:
		return "clone"
	default:
		return fmt.Sprintf("unknown (%d)", uint32(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "emulator":
		return ModeEmulator, nil
	case "clone":
		return ModeClone, nil
	}
	return 0, errors.Wrap(ErrBadMode, s)
}

// Config is the persisted device configuration. The field order and sizes
// are the flash layout.
type Config struct {
	Magic     [16]byte
	Mode      Mode
	Bank      int32
	DumpLines int32
	GPIO      gpio.Settings
	Watch     [capture.BitmapSize]byte
}

func DefaultConfig() Config {
	var c Config
	copy(c.Magic[:], Magic)
	c.Mode = ModeEmulator
	c.DumpLines = DefaultDumpLines
	c.GPIO = gpio.DefaultSettings()
	return c
}

func (c *Config) Valid() bool {
	return string(c.Magic[:]) == Magic
}

// MarshalBinary encodes the record padded to ConfigWriteSize.
func (c *Config) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(ConfigWriteSize)
	if err := binary.Write(&buf, binary.LittleEndian, c); err != nil {
		return nil, errors.Wrap(err, "could not encode config")
	}
	buf.Write(make([]byte, ConfigWriteSize-buf.Len()))
	return buf.Bytes(), nil
}

func (c *Config) UnmarshalBinary(data []byte) error {
	return errors.Wrap(binary.Read(bytes.NewReader(data), binary.LittleEndian, c), "could not decode config")
}
