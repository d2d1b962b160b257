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
	"sync/atomic"
)

// RingSize is the number of events the log keeps.
const RingSize = 8192

// Ring is the event log between the capture loop (single producer) and the
// retrieval side (single consumer). When full the oldest event is overwritten;
// the producer never waits.
//
// Each slot carries the low bits of the sequence number it was written with,
// so the consumer can tell when a slot was overwritten under it.
type Ring struct {
	slots [RingSize]atomic.Uint64
	wp    atomic.Uint64
	rp    uint64 // Consumer owned.
}

// Push appends an event. Producer side only.
func (r *Ring) Push(e Event) {
	w := r.wp.Load()
	r.slots[w%RingSize].Store(w<<32 | uint64(e))
	r.wp.Store(w + 1)
}

// IsEmpty reports if there is nothing to pop. Consumer side only.
func (r *Ring) IsEmpty() bool {
	return r.rp == r.wp.Load()
}

// Len returns the number of retrievable events. Consumer side only.
func (r *Ring) Len() int {
	n := r.wp.Load() - r.rp
	if n > RingSize {
		n = RingSize
	}
	return int(n)
}

// Pop returns the oldest retrievable event. Consumer side only.
func (r *Ring) Pop() (Event, bool) {
	for {
		w := r.wp.Load()
		if r.rp == w {
			return 0, false
		}
		if w-r.rp > RingSize {
			r.rp = w - RingSize
		}

		v := r.slots[r.rp%RingSize].Load()
		if uint32(v>>32) != uint32(r.rp) {
			continue // Overwritten, skip ahead.
		}
		r.rp++
		return Event(v), true
	}
}

// Discard drops the backlog. Consumer side only.
func (r *Ring) Discard() {
	r.rp = r.wp.Load()
}

// Drain pops everything currently retrievable.
func (r *Ring) Drain() []Event {
	var events []Event
	for {
		e, ok := r.Pop()
		if !ok {
			return events
		}
		events = append(events, e)
	}
}
