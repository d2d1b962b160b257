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

// Command capdump prints a bus capture saved with capsave.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/andreas-jonsson/virtualrom/firmware/capture"
	"github.com/spf13/afero"
)

func main() {
	kind := flag.String("kind", "", "Only print events of this kind (W, R or X)")
	addr := flag.String("addr", "", "Only print events at this hex address")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: capdump [flags] file.pcap")
		flag.PrintDefaults()
		os.Exit(2)
	}

	fs := afero.NewOsFs()
	fp, err := fs.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer fp.Close()

	events, err := capture.ReadPcap(fp)
	if err != nil {
		log.Fatal(err)
	}

	match := func(capture.Event) bool { return true }
	if *addr != "" {
		a, err := strconv.ParseUint(*addr, 16, 16)
		if err != nil {
			log.Fatal(err)
		}
		match = func(e capture.Event) bool { return e.Address() == uint16(a) }
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	for _, e := range events {
		if *kind != "" && e.Kind().String() != *kind {
			continue
		}
		if match(e) {
			fmt.Fprintln(w, e)
		}
	}
}
