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

package platform

import (
	"bufio"
	"bytes"
	"context"
	"time"

	"github.com/andreas-jonsson/virtualrom/firmware"
	"github.com/gdamore/tcell"
)

const DefaultRefresh = 50 * time.Millisecond

// Viewer draws the live dump and capture views on a tcell screen.
// Any key closes the view.
type Viewer struct {
	NewScreen func() (tcell.Screen, error)
	Refresh   time.Duration
}

func NewViewer() *Viewer {
	return &Viewer{NewScreen: tcell.NewScreen, Refresh: DefaultRefresh}
}

func (v *Viewer) open() (tcell.Screen, <-chan struct{}, error) {
	tcell.SetEncodingFallback(tcell.EncodingFallbackASCII)

	s, err := v.NewScreen()
	if err != nil {
		return nil, nil, err
	}
	if err = s.Init(); err != nil {
		return nil, nil, err
	}

	s.HideCursor()
	s.DisableMouse()
	s.Clear()

	quit := make(chan struct{})
	go func() {
		for {
			switch s.PollEvent().(type) {
			case nil:
				return
			case *tcell.EventKey:
				close(quit)
				return
			case *tcell.EventResize:
				s.Sync()
			}
		}
	}()
	return s, quit, nil
}

func (v *Viewer) loop(ctx context.Context, draw func(s tcell.Screen)) error {
	s, quit, err := v.open()
	if err != nil {
		return err
	}
	defer s.Fini()

	refresh := v.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		draw(s)
		s.Show()

		select {
		case <-quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func putLine(s tcell.Screen, y int, line string) {
	w, _ := s.Size()
	for x := 0; x < w; x++ {
		r := ' '
		if x < len(line) {
			r = rune(line[x])
		}
		s.SetContent(x, y, r, nil, tcell.StyleDefault)
	}
}

// DumpWatch redraws the dump at addr until closed.
func (v *Viewer) DumpWatch(ctx context.Context, d *firmware.Device, addr uint16) error {
	var buf bytes.Buffer
	return v.loop(ctx, func(s tcell.Screen) {
		buf.Reset()
		d.Dump(&buf, addr, int(d.Config.DumpLines))

		sc := bufio.NewScanner(&buf)
		for y := 0; sc.Scan(); y++ {
			putLine(s, y, sc.Text())
		}
	})
}

// Capture scrolls the capture log as events arrive until closed.
func (v *Viewer) Capture(ctx context.Context, d *firmware.Device) error {
	var lines []string
	return v.loop(ctx, func(s tcell.Screen) {
		_, h := s.Size()
		for {
			e, ok := d.Pop()
			if !ok {
				break
			}
			lines = append(lines, e.String())
		}
		if len(lines) > h {
			lines = lines[len(lines)-h:]
		}
		for y := 0; y < h; y++ {
			line := ""
			if y < len(lines) {
				line = lines[y]
			}
			putLine(s, y, line)
		}
	})
}
