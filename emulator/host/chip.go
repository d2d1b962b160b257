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
	"io"
	"io/ioutil"

	"github.com/pkg/errors"
)

// ImageChip is a read-only chip with fixed content, for the device to
// read when it is bus master. Addresses past the image float high.
type ImageChip []byte

func LoadChip(r io.Reader) (ImageChip, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not read chip image")
	}
	return ImageChip(data), nil
}

func (c ImageChip) Output(addr uint16) byte {
	if int(addr) < len(c) {
		return c[addr]
	}
	return 0xFF
}
