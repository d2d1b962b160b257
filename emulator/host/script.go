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
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"
)

// RunScript runs a Lua stimulus script against the bus. The script sees
// the globals read(addr), write(addr, value), sleep(ms) and log(...).
func (h *Host) RunScript(ctx context.Context, name string, r io.Reader, out io.Writer) error {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	L.SetGlobal("read", L.NewFunction(func(L *lua.LState) int {
		a := L.CheckInt(1)
		v, err := h.Read(ctx, uint16(a))
		if err != nil {
			L.RaiseError("%v", err)
		}
		L.Push(lua.LNumber(v))
		return 1
	}))

	L.SetGlobal("write", L.NewFunction(func(L *lua.LState) int {
		a, v := L.CheckInt(1), L.CheckInt(2)
		if err := h.Write(ctx, uint16(a), byte(v)); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}))

	L.SetGlobal("sleep", L.NewFunction(func(L *lua.LState) int {
		select {
		case <-time.After(time.Duration(L.CheckInt(1)) * time.Millisecond):
		case <-ctx.Done():
			L.RaiseError("%v", ctx.Err())
		}
		return 0
	}))

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		var args []string
		for i := 1; i <= L.GetTop(); i++ {
			args = append(args, L.ToStringMeta(L.Get(i)).String())
		}
		fmt.Fprintln(out, strings.Join(args, " "))
		return 0
	}))

	fn, err := L.Load(r, name)
	if err != nil {
		return errors.Wrap(err, "could not load script")
	}
	L.Push(fn)
	return errors.Wrapf(L.PCall(0, lua.MultRet, nil), "script %s", name)
}
