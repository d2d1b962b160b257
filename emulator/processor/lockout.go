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

package processor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
)

// Lockout lets one core pause the other at a safe point.
//
// The pausing core calls StartBlocking, which returns once the victim has
// parked at the park location, and EndBlocking, which returns once the
// victim has resumed. The victim must call Poll regularly.
type Lockout struct {
	parkPC memory.Pointer

	victim  atomic.Bool
	paused  atomic.Bool
	request chan chan struct{}
	release chan struct{}
	ack     chan struct{}
	pauses  atomic.Int64

	// abort is closed when the pausing core gives up on the current pause.
	// Only touched by the pausing core.
	abort chan struct{}
}

func NewLockout(parkPC memory.Pointer) *Lockout {
	return &Lockout{
		parkPC:  parkPC,
		request: make(chan chan struct{}),
		release: make(chan struct{}),
		ack:     make(chan struct{}),
	}
}

// VictimInit registers the calling core as pausable.
func (l *Lockout) VictimInit() {
	l.victim.Store(true)
}

func (l *Lockout) IsVictim() bool {
	return l.victim.Load()
}

// Paused reports if the victim is parked.
func (l *Lockout) Paused() bool {
	return l.paused.Load()
}

// Pauses returns how many times the victim has been parked.
func (l *Lockout) Pauses() int64 {
	return l.pauses.Load()
}

// Poll is the victim's safe point. If a pause is requested the core parks
// until released. Poll returns false once ctx has ended.
func (l *Lockout) Poll(ctx context.Context, core *Core) bool {
	if ctx.Err() != nil {
		return false
	}
	if !l.victim.Load() {
		return true
	}

	select {
	case abort := <-l.request:
		return l.park(ctx, core, abort)
	default:
		return true
	}
}

// Sleep waits for d while still honouring pause requests.
func (l *Lockout) Sleep(ctx context.Context, core *Core, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	request := l.request
	if !l.victim.Load() {
		request = nil
	}

	for {
		select {
		case <-timer.C:
			return true
		case <-ctx.Done():
			return false
		case abort := <-request:
			if !l.park(ctx, core, abort) {
				return false
			}
		}
	}
}

// park holds the victim at the park location. If the pausing core gives up
// the victim resumes where it was.
func (l *Lockout) park(ctx context.Context, core *Core, abort <-chan struct{}) bool {
	resume := core.PC()
	core.Exec(l.parkPC)
	l.paused.Store(true)
	l.pauses.Add(1)
	defer func() {
		l.paused.Store(false)
		core.Exec(resume)
	}()

	select {
	case l.ack <- struct{}{}:
	case <-abort:
		return true
	case <-ctx.Done():
		return false
	}

	select {
	case <-l.release:
	case <-abort:
		return true
	case <-ctx.Done():
		return false
	}

	l.paused.Store(false)
	core.Exec(resume)
	select {
	case l.ack <- struct{}{}:
	case <-abort:
	case <-ctx.Done():
		return false
	}
	return true
}

// StartBlocking pauses the victim. Without a victim polling it blocks
// until ctx ends.
func (l *Lockout) StartBlocking(ctx context.Context) error {
	abort := make(chan struct{})
	select {
	case l.request <- abort:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-l.ack:
		l.abort = abort
		return nil
	case <-ctx.Done():
		close(abort)
		return ctx.Err()
	}
}

// EndBlocking resumes the victim. If ctx ends first the victim is still
// let go.
func (l *Lockout) EndBlocking(ctx context.Context) error {
	abort := l.abort
	l.abort = nil
	if abort == nil {
		abort = make(chan struct{})
	}

	select {
	case l.release <- struct{}{}:
	case <-ctx.Done():
		close(abort)
		return ctx.Err()
	}

	select {
	case <-l.ack:
		return nil
	case <-ctx.Done():
		close(abort)
		return ctx.Err()
	}
}
