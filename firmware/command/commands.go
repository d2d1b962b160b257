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

package command

import (
	"context"
	"strings"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualrom/firmware/capture"
	"github.com/andreas-jonsson/virtualrom/firmware/store"
)

const (
	defaultPulseWidth  = 100 * time.Microsecond
	defaultCloneWait   = 3
	defaultCloneVerify = 2
)

var emulatorCommands, cloneCommands []Command

func init() {
	emulatorCommands = []Command{
		{"help", cmdHelp, "show help"},
		{"?", cmdHelp, "show help"},
		{"reboot", cmdReboot, "reboot RP27C512"},
		{"mode", cmdMode, "select mode (mode emulator|clone)"},
		{"gpio", cmdGPIO, "show GPIO status"},
		{"device", cmdDevice, "select device (device rom|ram)"},
		{"d", cmdDump, "dump device (d address)"},
		{"dw", cmdDumpWatch, "dump device repeatly (dw address)"},
		{"dlen", cmdDumpLen, "set dump line count (dlen count)"},
		{"e", cmdEdit, "edit memory (e address [value...])"},
		{"m", cmdMove, "move memory (m start end dest)"},
		{"f", cmdFill, "fill memory (f start end value)"},
		{"watch", cmdWatch, "set capture area"},
		{"unwatch", cmdUnwatch, "unset capture area"},
		{"cap", cmdCapture, "show capture log"},
		{"capsave", cmdCaptureSave, "save capture log as pcap (capsave file)"},
		{"wlist", cmdListWatch, "list capture area"},
		{"wsave", cmdSaveWatch, "save capture area"},
		{"bank", cmdBank, "select flash rom bank (bank 0,1,2,3)"},
		{"load", cmdLoad, "load data from current flash rom bank"},
		{"save", cmdSave, "save data to current flash rom bank"},
		{"erase", cmdErase, "erase flash rom bank"},
		{"config", cmdConfig, "load or save configuration (config load|save)"},
		{"init", cmdInit, "initialize rom/config (init all|rom|config)"},
	}

	cloneCommands = []Command{
		{"help", cmdHelp, "show help"},
		{"?", cmdHelp, "show help"},
		{"reboot", cmdReboot, "reboot RP27C512"},
		{"mode", cmdMode, "select mode (mode emulator|clone)"},
		{"gpio", cmdGPIO, "show GPIO status"},
		{"d", cmdDump, "dump device (d address)"},
		{"dlen", cmdDumpLen, "set dump line count (dlen count)"},
		{"e", cmdEdit, "edit memory (e address [value...])"},
		{"m", cmdMove, "move memory (m start end dest)"},
		{"f", cmdFill, "fill memory (f start end value)"},
		{"bank", cmdBank, "select flash rom bank (bank 0,1,2,3)"},
		{"load", cmdLoad, "load data from current flash rom bank"},
		{"save", cmdSave, "save data to current flash rom bank"},
		{"erase", cmdErase, "erase flash rom bank"},
		{"clone", cmdClone, "clone from real ROM chip (clone wait verify_num)"},
		{"config", cmdConfig, "load or save configuration (config load|save)"},
		{"init", cmdInit, "initialize rom/config (init all|rom|config)"},
	}
}

func cmdHelp(_ context.Context, s *Shell, _ []string) {
	for _, c := range s.table {
		s.printf("%-8s: %s\n", c.Name, c.Help)
	}
}

func cmdReboot(_ context.Context, s *Shell, _ []string) {
	s.Device.Reboot()
}

func cmdMode(ctx context.Context, s *Shell, args []string) {
	if len(args) == 2 {
		m, err := store.ParseMode(args[1])
		if err == nil {
			s.printf("mode: %v\n", m)
			ok, _ := s.Device.SwitchMode(ctx, m)
			s.result("mode", ok)
			return
		}
		s.println("error: unknown mode.")
	}
	s.println("mode emulator|clone")
	s.printf("current mode: %v\n", s.Device.Mode())
}

func gpioUsage(s *Shell) {
	s.println("gpio commands:")
	s.println("  gpio in pin (only for ext0-2)")
	s.println("  gpio out pin (only for ext0-2)")
	s.println("  gpio pullup pin")
	s.println("  gpio pulldown pin")
	s.println("  gpio pullno pin")
	s.println("  gpio set pin (only for ext0-2)")
	s.println("  gpio clr pin (only for ext0-2)")
	s.println("  gpio pulse pin [width_us]")
	s.println("  gpio save")
	s.println("pin name & pin no:")
	for pin, name := range gpio.PinNames() {
		s.printf("  %-4s %d\n", name, pin)
	}
}

func cmdGPIO(ctx context.Context, s *Shell, args []string) {
	bus := s.Device.Board.GPIO
	if len(args) == 1 {
		cfg := bus.Settings()
		s.println("GPIO:")
		s.printf(" current : %08x\n", uint32(bus.Get()))
		s.printf(" dir     : %08x\n", cfg.Dir)
		s.printf(" initial : %08x\n", cfg.Value)
		s.printf(" pullup  : %08x\n", cfg.PullUp)
		s.printf(" pulldown: %08x\n", cfg.PullDown)
		return
	}

	if len(args) == 2 && args[1] == "save" {
		s.printf("save GPIO settings ... ")
		ok := s.Device.SaveGPIO(ctx)
		s.println("done.")
		s.result("gpio", ok)
		return
	}

	if len(args) < 3 {
		gpioUsage(s)
		return
	}
	pin, ok := gpio.PinByName(args[2])
	if !ok {
		gpioUsage(s)
		return
	}

	switch args[1] {
	case "in":
		ok = bus.SetDir(pin, false)
	case "out":
		ok = bus.SetDir(pin, true)
	case "pullup":
		ok = bus.Pull(pin, true, false)
	case "pulldown":
		ok = bus.Pull(pin, false, true)
	case "pullno":
		ok = bus.Pull(pin, false, false)
	case "set":
		ok = bus.Put(pin, true)
	case "clr":
		ok = bus.Put(pin, false)
	case "pulse":
		width := defaultPulseWidth
		if len(args) > 3 {
			us, valid := parseInt(args[3])
			if !valid || us < 0 {
				gpioUsage(s)
				return
			}
			width = time.Duration(us) * time.Microsecond
		}
		ok = bus.Pulse(ctx, pin, width)
	default:
		ok = false
	}
	if !ok {
		gpioUsage(s)
	}
}

func cmdDevice(_ context.Context, s *Shell, args []string) {
	if len(args) > 1 {
		if err := s.Device.SelectDevice(args[1]); err != nil {
			s.println("error: unknown device. only support ram or rom")
			return
		}
	} else {
		s.println("device ram|rom")
	}
	s.printf("current device: %s\n", s.Device.DeviceName())
}

func cmdDump(_ context.Context, s *Shell, args []string) {
	if len(args) > 1 {
		addr, ok := parseAddr(args[1])
		if !ok {
			s.println("d address")
			return
		}
		s.Device.DumpNext(s.out, &addr)
		return
	}
	s.Device.DumpNext(s.out, nil)
}

func cmdDumpWatch(ctx context.Context, s *Shell, args []string) {
	var addr uint16
	if len(args) > 1 {
		var ok bool
		if addr, ok = parseAddr(args[1]); !ok {
			s.println("dw address")
			return
		}
	}
	if s.Viewer == nil {
		s.Device.Dump(s.out, addr, int(s.Device.Config.DumpLines))
		return
	}
	if err := s.Viewer.DumpWatch(ctx, s.Device, addr); err != nil {
		s.printf("error: %v\n", err)
	}
}

func cmdDumpLen(ctx context.Context, s *Shell, args []string) {
	if len(args) > 1 {
		n, ok := parseInt(args[1])
		save := false
		if len(args) > 2 {
			if args[2] != "save" {
				s.println("error: illegal save option")
				return
			}
			save = true
		}
		if !ok {
			n = 0
		}
		if _, err := s.Device.SetDumpLines(ctx, n, save); err != nil {
			s.printf("error: %v\n", err)
		}
	} else {
		s.println("dlen len [save]")
	}
	s.printf("current dump line count: %d\n", s.Device.Config.DumpLines)
}

func cmdEdit(_ context.Context, s *Shell, args []string) {
	if len(args) > 1 {
		addr, ok := parseAddr(args[1])
		if !ok {
			s.println("e address [value...]")
			return
		}
		s.Device.SetEditCursor(addr)
	}

	for _, a := range args[min(len(args), 2):] {
		v, ok := parseByte(a)
		if !ok {
			s.printf("error: illegal value %s\n", a)
			break
		}
		s.Device.Edit(nil, v)
	}

	addr, v := s.Device.EditCursor()
	s.printf("%04x %02x\n", addr, v)
}

func parseRange(args []string) (start, end, third uint16, ok bool) {
	if len(args) < 4 {
		return 0, 0, 0, false
	}
	var ok1, ok2, ok3 bool
	start, ok1 = parseAddr(args[1])
	end, ok2 = parseAddr(args[2])
	third, ok3 = parseAddr(args[3])
	return start, end, third, ok1 && ok2 && ok3
}

func cmdMove(_ context.Context, s *Shell, args []string) {
	start, end, dest, ok := parseRange(args)
	if !ok || s.Device.Move(start, end, dest) != nil {
		s.println("m start end dest")
	}
}

func cmdFill(_ context.Context, s *Shell, args []string) {
	start, end, v, ok := parseRange(args)
	if !ok || v > 0xFF || s.Device.Fill(start, end, byte(v)) != nil {
		s.println("f start end value")
	}
}

func cmdWatch(_ context.Context, s *Shell, args []string) {
	if len(args) < 3 {
		s.println("watch start end")
		return
	}
	start, ok1 := parseAddr(args[1])
	end, ok2 := parseAddr(args[2])
	if !ok1 || !ok2 {
		s.println("watch start end")
		return
	}
	s.printf("set capture area %04x %04x\n", start, end)
	s.Device.EnableRange(start, end)
}

func cmdUnwatch(_ context.Context, s *Shell, args []string) {
	if len(args) < 3 {
		s.println("unwatch start end")
		return
	}
	start, ok1 := parseAddr(args[1])
	end, ok2 := parseAddr(args[2])
	if !ok1 || !ok2 {
		s.println("unwatch start end")
		return
	}
	s.printf("unset capture area %04x %04x\n", start, end)
	s.Device.DisableRange(start, end)
}

// cmdCapture shows events live in the viewer. Without one it prints what
// has been logged so far and consumes it.
func cmdCapture(ctx context.Context, s *Shell, args []string) {
	if len(args) > 1 && args[1] == "clear" {
		s.Device.CaptureStart()
		return
	}

	if s.Viewer != nil {
		s.Device.CaptureStart()
		if err := s.Viewer.Capture(ctx, s.Device); err != nil {
			s.printf("error: %v\n", err)
		}
		return
	}

	for {
		e, ok := s.Device.Pop()
		if !ok {
			return
		}
		s.println(e)
	}
}

func cmdCaptureSave(_ context.Context, s *Shell, args []string) {
	if len(args) < 2 || s.Fs == nil {
		s.println("capsave file")
		return
	}

	var events []capture.Event
	for {
		e, ok := s.Device.Pop()
		if !ok {
			break
		}
		events = append(events, e)
	}

	fp, err := s.Fs.Create(args[1])
	if err != nil {
		s.printf("error: %v\n", err)
		s.result("capsave", false)
		return
	}
	defer fp.Close()

	err = capture.WritePcap(fp, events)
	if err != nil {
		s.printf("error: %v\n", err)
	} else {
		s.printf("%d event(s) written to %s\n", len(events), args[1])
	}
	s.result("capsave", err == nil)
}

func cmdListWatch(_ context.Context, s *Shell, args []string) {
	start, end := uint16(0), uint16(0xFFFF)
	if len(args) > 1 {
		start, _ = parseAddr(args[1])
	}
	if len(args) > 2 {
		end, _ = parseAddr(args[2])
	}
	for _, r := range s.Device.ListRanges(start, end) {
		s.printf("%04x %04x\n", r.Start, r.End)
	}
}

func cmdSaveWatch(ctx context.Context, s *Shell, _ []string) {
	s.printf("save capture area ... ")
	ok := s.Device.SaveWatch(ctx)
	s.println("done.")
	s.result("wsave", ok)
}

func parseBank(s *Shell, args []string) (int, bool) {
	n, ok := parseInt(args[1])
	if !ok || store.CheckBank(n) != nil {
		s.println("error: illegal bank num")
		return 0, false
	}
	return n, true
}

func cmdBank(ctx context.Context, s *Shell, args []string) {
	if len(args) > 1 {
		if n, ok := parseBank(s, args); ok {
			ok, _ = s.Device.SelectBank(ctx, n)
			s.printf("current rom bank: %d\n", s.Device.Config.Bank)
			s.result("bank", ok)
			return
		}
	}
	s.println("bank 0|1|2|3")
	s.printf("current rom bank: %d\n", s.Device.Config.Bank)
}

// currentBank picks the bank given on the command line or the selected one.
func currentBank(s *Shell, args []string) (int, bool) {
	if len(args) > 1 {
		return parseBank(s, args)
	}
	return int(s.Device.Config.Bank), true
}

func cmdLoad(ctx context.Context, s *Shell, args []string) {
	n, ok := currentBank(s, args)
	if !ok {
		return
	}
	s.printf("load rom bank %d ... ", n)
	ok, err := s.Device.LoadBank(ctx, n)
	s.println("done.")
	if err != nil {
		s.printf("error: %v\n", err)
	}
	s.result("load", ok)
}

func cmdSave(ctx context.Context, s *Shell, args []string) {
	n, ok := currentBank(s, args)
	if !ok {
		return
	}
	s.printf("save rom bank %d ... ", n)
	ok, err := s.Device.SaveBank(ctx, n)
	s.println("done.")
	if err != nil {
		s.printf("error: %v\n", err)
	}
	s.result("save", ok)
}

func cmdErase(ctx context.Context, s *Shell, args []string) {
	if len(args) < 2 {
		s.println("erase 0,1,2,3")
		return
	}
	n, ok := parseBank(s, args)
	if !ok {
		return
	}
	s.printf("erase rom bank %d ... ", n)
	ok, _ = s.Device.EraseBank(ctx, n)
	s.println("done.")
	s.result("erase", ok)
}

func cmdClone(ctx context.Context, s *Shell, args []string) {
	wait, verify := defaultCloneWait, defaultCloneVerify
	if len(args) > 1 {
		wait, _ = parseInt(args[1])
	}
	if len(args) > 2 {
		verify, _ = parseInt(args[2])
	}
	ok, err := s.Device.Clone(ctx, time.Duration(wait)*time.Second, verify, s.out)
	if err != nil {
		s.printf("error: %v\n", err)
	}
	s.result("clone", ok)
}

func cmdConfig(ctx context.Context, s *Shell, args []string) {
	if len(args) == 2 {
		switch args[1] {
		case "load":
			s.result("config", s.Device.ConfigLoad(ctx))
			return
		case "save":
			s.result("config", s.Device.ConfigSave(ctx))
			return
		}
	}
	s.println("config load|save")
}

func cmdInit(ctx context.Context, s *Shell, args []string) {
	if len(args) > 1 {
		what := strings.ToLower(args[1])
		switch what {
		case "all", "rom":
			s.println("erase all flash rom banks")
		}
		if what == "all" || what == "config" {
			s.println("initialize configuration")
		}
		ok, err := s.Device.Init(ctx, what)
		if err == nil {
			s.result("init", ok)
			return
		}
		s.println("error: illegal parameter")
	}
	s.println("init all|rom|config")
}
