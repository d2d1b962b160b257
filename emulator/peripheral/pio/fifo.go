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

package pio

import (
	"context"
	"sync"
)

const FifoDepth = 4

// FIFO is a state machine FIFO shared between a state machine and the
// system side (firmware and DMA).
type FIFO struct {
	lock    sync.Mutex
	buf     [FifoDepth]uint32
	head, n int
	changed chan struct{}
}

func newFIFO() *FIFO {
	return &FIFO{changed: make(chan struct{})}
}

func (f *FIFO) signal() {
	close(f.changed)
	f.changed = make(chan struct{})
}

func (f *FIFO) TryPush(v uint32) bool {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.n == FifoDepth {
		return false
	}
	f.buf[(f.head+f.n)%FifoDepth] = v
	f.n++
	f.signal()
	return true
}

func (f *FIFO) TryPop() (uint32, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.n == 0 {
		return 0, false
	}
	v := f.buf[f.head]
	f.head = (f.head + 1) % FifoDepth
	f.n--
	f.signal()
	return v, true
}

func (f *FIFO) Len() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.n
}

func (f *FIFO) Clear() {
	f.lock.Lock()
	f.head, f.n = 0, 0
	f.signal()
	f.lock.Unlock()
}

func (f *FIFO) wait(ctx context.Context, cond func() bool) error {
	for {
		f.lock.Lock()
		if cond() {
			f.lock.Unlock()
			return nil
		}
		ch := f.changed
		f.lock.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *FIFO) WaitNotEmpty(ctx context.Context) error {
	return f.wait(ctx, func() bool { return f.n > 0 })
}

func (f *FIFO) WaitNotFull(ctx context.Context) error {
	return f.wait(ctx, func() bool { return f.n < FifoDepth })
}

// Push blocks while the FIFO is full.
func (f *FIFO) Push(ctx context.Context, v uint32) error {
	for {
		if f.TryPush(v) {
			return nil
		}
		if err := f.WaitNotFull(ctx); err != nil {
			return err
		}
	}
}

// Pop blocks while the FIFO is empty.
func (f *FIFO) Pop(ctx context.Context) (uint32, error) {
	for {
		if v, ok := f.TryPop(); ok {
			return v, nil
		}
		if err := f.WaitNotEmpty(ctx); err != nil {
			return 0, err
		}
	}
}

type dreq struct {
	f  *FIFO
	tx bool
}

func (d dreq) Wait(ctx context.Context) error {
	if d.tx {
		return d.f.WaitNotFull(ctx)
	}
	return d.f.WaitNotEmpty(ctx)
}
