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

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/andreas-jonsson/virtualrom/emulator"
	"github.com/andreas-jonsson/virtualrom/emulator/host"
	"github.com/andreas-jonsson/virtualrom/emulator/peripheral/gpio"
	"github.com/andreas-jonsson/virtualrom/firmware"
	"github.com/andreas-jonsson/virtualrom/firmware/command"
	"github.com/andreas-jonsson/virtualrom/firmware/store"
	"github.com/andreas-jonsson/virtualrom/platform"
	"github.com/andreas-jonsson/virtualrom/version"
	"github.com/spf13/afero"
)

var (
	flashImage = "flash.bin"
	tty        string
	baud       uint = 115200
	scriptPath string
	chipPath   string
	flashWait  = store.DefaultFlashWait
	accessTime = host.DefaultAccessTime
)

var (
	clearMemory,
	ver bool
)

func init() {
	if p, ok := os.LookupEnv("VROM_FLASH_IMAGE"); ok {
		flashImage = p
	}

	flag.BoolVar(&ver, "v", false, "Print version information")
	flag.BoolVar(&clearMemory, "clear", false, "Power on with cleared SRAM")

	flag.StringVar(&flashImage, "flash", flashImage, "Flash backing file")
	flag.StringVar(&tty, "tty", "", "Serve the console on a serial device instead of the terminal")
	flag.UintVar(&baud, "baud", baud, "Serial device baud rate")
	flag.StringVar(&scriptPath, "script", "", "Lua script driving the host bus after boot")
	flag.StringVar(&chipPath, "chip", "", "Image of the chip read in clone mode")

	flag.DurationVar(&flashWait, "flash-wait", flashWait, "Settle time around slow flash operations")
	flag.DurationVar(&accessTime, "access-time", accessTime, "Host read cycle access time")
}

func main() {
	flag.Parse()

	if ver {
		fmt.Printf("%s (%s)\n", version.Current.FullString(), version.Hash)
		return
	}

	fs := afero.NewOsFs()

	var chip gpio.Chip
	if chipPath != "" {
		c, err := loadChip(fs, chipPath)
		if err != nil {
			log.Fatal(err)
		}
		chip = c
	}

	console, err := openConsole()
	if err != nil {
		log.Fatal(err)
	}
	defer console.Close()
	log.SetOutput(console)

	printLogo(console)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	for {
		if err := run(ctx, fs, console, chip); err != nil {
			if err != io.EOF {
				log.Print(err)
			}
			return
		}
	}
}

func openConsole() (*platform.Console, error) {
	if tty != "" {
		return platform.OpenSerial(tty, baud)
	}
	return platform.OpenStdio()
}

func loadChip(fs afero.Fs, name string) (host.ImageChip, error) {
	fp, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return host.LoadChip(fp)
}

// run powers on the board and serves the console until the firmware
// asks for a reboot.
func run(ctx context.Context, fs afero.Fs, console *platform.Console, chip gpio.Chip) error {
	b, err := emulator.New(emulator.Config{
		Fs:          fs,
		FlashImage:  flashImage,
		ClearMemory: clearMemory,
		Chip:        chip,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	d, err := firmware.New(b, firmware.Options{FlashWait: flashWait})
	if err != nil {
		return err
	}
	if err := d.Boot(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if scriptPath != "" && d.Mode() == store.ModeEmulator {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := runScript(ctx, fs, b, console); err != nil && ctx.Err() == nil {
				log.Print(err)
			}
		}()
	}

	var viewer command.Viewer
	if tty == "" {
		viewer = platform.NewViewer()
	}
	return console.Serve(ctx, command.New(d, fs, viewer))
}

func runScript(ctx context.Context, fs afero.Fs, b *emulator.Board, out io.Writer) error {
	fp, err := fs.Open(scriptPath)
	if err != nil {
		return err
	}
	defer fp.Close()

	h := &host.Host{Bus: b.GPIO, AccessTime: accessTime}
	start := time.Now()
	err = h.RunScript(ctx, scriptPath, fp, out)
	log.Printf("script %s finished after %v", scriptPath, time.Since(start).Round(time.Millisecond))
	return err
}

func printLogo(w io.Writer) {
	fmt.Fprint(w, logo)
	fmt.Fprintln(w, "v"+version.Current.String())
	fmt.Fprintln(w, " ───────═════ "+version.Copyright+" ══════───────")
	fmt.Fprintln(w)
}

var logo = `
██████╗ ██████╗ ██████╗ ███████╗ ██████╗███████╗ ██╗██████╗
██╔══██╗██╔══██╗╚════██╗╚════██║██╔════╝██╔════╝███║╚════██╗
██████╔╝██████╔╝ █████╔╝    ██╔╝██║     ███████╗╚██║ █████╔╝
██╔══██╗██╔═══╝ ██╔═══╝    ██╔╝ ██║     ╚════██║ ██║██╔═══╝
██║  ██║██║     ███████╗   ██║  ╚██████╗███████║ ██║███████╗
╚═╝  ╚═╝╚═╝     ╚══════╝   ╚═╝   ╚═════╝╚══════╝ ╚═╝╚══════╝
`
