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
	"context"
	"log"

	"github.com/andreas-jonsson/virtualrom/emulator/processor"
)

// Guard keeps the companion core out of flash while the operator core
// mutates it.
type Guard struct {
	Core    *processor.Core
	Lockout *processor.Lockout
}

// Run disables interrupts, parks the companion core, runs fn, resumes
// the companion and restores interrupts. fn is not run if the companion
// could not be parked.
func (g *Guard) Run(ctx context.Context, fn func() bool) bool {
	ints := g.Core.SaveAndDisableInterrupts()
	defer g.Core.RestoreInterrupts(ints)

	if err := g.Lockout.StartBlocking(ctx); err != nil {
		log.Print("lockout: ", err)
		return false
	}
	ok := fn()
	if err := g.Lockout.EndBlocking(ctx); err != nil {
		log.Print("lockout: ", err)
	}
	return ok
}
