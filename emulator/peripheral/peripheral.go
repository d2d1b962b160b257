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

package peripheral

import (
	"log"
	"strings"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/pkg/errors"
)

type Peripheral interface {
	Name() string
	Reset()
	Install(*memory.Map) error
}

type PeripheralCloser interface {
	Close() error
}

type NullDevice struct {
}

func (*NullDevice) Install(*memory.Map) error {
	return nil
}

func (*NullDevice) Name() string {
	return "Null Device"
}

func (*NullDevice) Reset() {
}

// ErrorSet defines a list of one or more errors and is itself an error.
type ErrorSet []error

func (e ErrorSet) Len() int {
	return len(e)
}

func (e *ErrorSet) Append(args ...error) {
	*e = append(*e, args...)
}

func (e ErrorSet) Error() string {
	var sb strings.Builder
	for _, err := range e {
		sb.WriteString(err.Error() + "\n")
	}
	return sb.String()
}

// InstallAll installs every peripheral into m, in order.
func InstallAll(m *memory.Map, peripherals []Peripheral) error {
	var errorset ErrorSet

	for _, p := range peripherals {
		log.Println(p.Name(), "startup")
		if err := p.Install(m); err != nil {
			errorset.Append(errors.Wrapf(err, "%s", p.Name()))
		}
	}

	if errorset.Len() == 0 {
		return nil
	}
	return errorset
}

// CloseAll closes the peripherals implementing PeripheralCloser, in reverse order.
func CloseAll(peripherals []Peripheral) error {
	var errorset ErrorSet

	for i := len(peripherals) - 1; i >= 0; i-- {
		if c, ok := peripherals[i].(PeripheralCloser); ok {
			log.Println(peripherals[i].Name(), "shutdown")
			if err := c.Close(); err != nil {
				errorset.Append(errors.Wrapf(err, "%s", peripherals[i].Name()))
			}
		}
	}

	if errorset.Len() == 0 {
		return nil
	}
	return errorset
}
