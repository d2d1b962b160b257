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

// Package platform connects the firmware to the host: the operator
// console, live views and serial transport.
package platform

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/andreas-jonsson/virtualrom/firmware/command"
	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Console is a line editing operator terminal.
type Console struct {
	term    *term.Terminal
	closer  io.Closer
	restore func()
}

// NewConsole wraps rw. Ctrl-C and Ctrl-D end input.
func NewConsole(rw io.ReadWriter) *Console {
	return &Console{term: term.NewTerminal(rw, "")}
}

type stdio struct {
	io.Reader
	io.Writer
}

// OpenStdio uses the process terminal, switched to raw mode when it is one.
func OpenStdio() (*Console, error) {
	c := NewConsole(stdio{os.Stdin, os.Stdout})

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, errors.Wrap(err, "could not set raw mode")
		}
		c.restore = func() { term.Restore(fd, state) }
	}
	return c, nil
}

// OpenSerial uses a serial port, as when the board is attached over USB.
func OpenSerial(name string, baud uint) (*Console, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        name,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", name)
	}
	c := NewConsole(port)
	c.closer = port
	return c, nil
}

func (c *Console) Write(p []byte) (int, error) {
	return c.term.Write(p)
}

func (c *Console) Close() error {
	if c.restore != nil {
		c.restore()
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// complete expands the command name under the cursor as far as it is unique.
func complete(sh *command.Shell, line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || strings.ContainsRune(line[:pos], ' ') {
		return "", 0, false
	}

	names := sh.Complete(line[:pos])
	if len(names) == 0 {
		return "", 0, false
	}

	prefix := names[0]
	for _, n := range names[1:] {
		for !strings.HasPrefix(n, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if len(names) == 1 {
		prefix += " "
	}
	return prefix + line[pos:], len(prefix), true
}

// Serve runs command lines until input ends, ctx ends or a command asks
// for a reboot. It returns io.EOF when the operator closed the console.
func (c *Console) Serve(ctx context.Context, sh *command.Shell) error {
	c.term.AutoCompleteCallback = func(line string, pos int, key rune) (string, int, bool) {
		return complete(sh, line, pos, key)
	}
	defer func() { c.term.AutoCompleteCallback = nil }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sh.Device.RebootRequested():
			return nil
		default:
		}

		c.term.SetPrompt(sh.Prompt())
		line, err := c.term.ReadLine()
		if err != nil {
			return err
		}
		sh.Execute(ctx, line, c.term)
	}
}
