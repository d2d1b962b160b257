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

// Package command is the text command layer on top of the firmware.
package command

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/andreas-jonsson/virtualrom/firmware"
	"github.com/andreas-jonsson/virtualrom/firmware/store"
	"github.com/spf13/afero"
)

// Viewer shows live views. The views return when the user presses a key
// or ctx ends.
type Viewer interface {
	Capture(ctx context.Context, d *firmware.Device) error
	DumpWatch(ctx context.Context, d *firmware.Device, addr uint16) error
}

type Command struct {
	Name    string
	Handler func(ctx context.Context, s *Shell, args []string)
	Help    string
}

// Shell runs command lines against a device. The command set depends on
// the mode the device booted in.
type Shell struct {
	Device *firmware.Device
	Viewer Viewer
	Fs     afero.Fs

	out   io.Writer
	table []Command
}

func New(d *firmware.Device, fs afero.Fs, v Viewer) *Shell {
	s := &Shell{Device: d, Viewer: v, Fs: fs}
	if d.Mode() == store.ModeClone {
		s.table = cloneCommands
	} else {
		s.table = emulatorCommands
	}
	return s
}

func (s *Shell) Commands() []Command {
	return s.table
}

func (s *Shell) Prompt() string {
	return fmt.Sprintf("%s> ", s.Device.Mode())
}

func (s *Shell) printf(format string, a ...interface{}) {
	fmt.Fprintf(s.out, format, a...)
}

func (s *Shell) println(a ...interface{}) {
	fmt.Fprintln(s.out, a...)
}

func (s *Shell) result(name string, ok bool) {
	if ok {
		s.printf("%s: OK\n", name)
	} else {
		s.printf("%s: NG\n", name)
	}
}

// Execute runs one command line. Output goes to out.
func (s *Shell) Execute(ctx context.Context, line string, out io.Writer) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}
	s.out = out

	for _, c := range s.table {
		if c.Name == args[0] {
			c.Handler(ctx, s, args)
			return
		}
	}
	s.printf("command not found: %s\n", args[0])
}

// Complete returns the command names starting with prefix.
func (s *Shell) Complete(prefix string) []string {
	var res []string
	for _, c := range s.table {
		if strings.HasPrefix(c.Name, prefix) {
			res = append(res, c.Name)
		}
	}
	sort.Strings(res)
	return res
}

func parseAddr(s string) (uint16, bool) {
	v, err := strconv.ParseUint(s, 16, 16)
	return uint16(v), err == nil
}

func parseByte(s string) (byte, bool) {
	v, err := strconv.ParseUint(s, 16, 8)
	return byte(v), err == nil
}

func parseInt(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	return v, err == nil
}
