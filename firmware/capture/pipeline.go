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
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/memory"
	"github.com/andreas-jonsson/virtualrom/emulator/processor"
)

const (
	idleInterval = time.Second

	// After this many empty polls the loop backs off for pollInterval.
	idleSpins    = 1000
	pollInterval = 100 * time.Microsecond
)

// Source is the hardware side of the pipeline.
type Source interface {
	Start()
	IsEmpty() bool
	Pop() uint32
}

// Shared is everything the operator and the capture loop both touch.
// Watch is written by the operator and read by the loop. Log is written
// by the loop and read by the operator.
type Shared struct {
	Watch Bitmap
	Log   Ring

	seen atomic.Uint64
	kept atomic.Uint64
}

// Stats returns how many events the loop has drained and how many it kept.
func (s *Shared) Stats() (seen, kept uint64) {
	return s.seen.Load(), s.kept.Load()
}

// Pipeline is the companion core loop moving events from the hardware
// ring into the log. LoopPC must point to resident memory, never flash.
type Pipeline struct {
	Shared  *Shared
	Source  Source
	Lockout *processor.Lockout
	LoopPC  memory.Pointer
}

// Run never returns until ctx ends.
func (p *Pipeline) Run(ctx context.Context, core *processor.Core) {
	p.Lockout.VictimInit()
	p.Source.Start()

	var spins int
	for ctx.Err() == nil {
		core.Exec(p.LoopPC)
		if !p.Lockout.Poll(ctx, core) {
			return
		}

		if p.Source.IsEmpty() {
			if spins++; spins < idleSpins {
				runtime.Gosched()
			} else if !p.Lockout.Sleep(ctx, core, pollInterval) {
				return
			}
			continue
		}
		spins = 0

		ev := Event(p.Source.Pop())
		p.Shared.seen.Add(1)
		if p.Shared.Watch.Watched(ev.Address()) {
			p.Shared.Log.Push(ev)
			p.Shared.kept.Add(1)
		}
	}
}

// Idle is the companion loop when nothing is captured. It only honours
// pause requests.
func Idle(lockout *processor.Lockout, loopPC memory.Pointer) func(context.Context, *processor.Core) {
	return func(ctx context.Context, core *processor.Core) {
		lockout.VictimInit()
		core.Exec(loopPC)
		for lockout.Sleep(ctx, core, idleInterval) {
			core.Exec(loopPC)
		}
	}
}
