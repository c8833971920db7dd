package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	units "github.com/docker/go-units"

	"github.com/albanread/nbcgo/internal/compiler"
	"github.com/albanread/nbcgo/internal/compiler/linker"
	"github.com/albanread/nbcgo/internal/compiler/rt"
)

func listRegistry(w io.Writer) {
	fmt.Fprint(w, rt.NewRegistry().List())
}

func printStats(w io.Writer, c *compiler.Compiled) {
	fmt.Fprintf(w, "code %s (aligned %s), %d labels, entry %#x\n",
		units.HumanSize(float64(c.Image.Size)),
		units.HumanSize(float64(c.Memory.AlignedSize())),
		len(c.Image.Labels), c.Entry)
}

// runConsole is the interactive inspector over a compiled module.
func runConsole(c *compiler.Compiled) error {
	rl, err := readline.New("nbc> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "help":
			fmt.Println("commands: runtime, symbols, labels, listing, stats, run, quit")
		case "runtime":
			fmt.Print(c.Context.Registry.List())
		case "symbols":
			fmt.Print(c.Context.Table.Dump())
		case "labels":
			for name, addr := range c.Image.Labels {
				fmt.Printf("%#016x  %s\n", addr, name)
			}
		case "listing":
			linker.WriteListing(rl.Stdout(), c.Image)
		case "stats":
			printStats(rl.Stdout(), c)
		case "run":
			result, err := compiler.Call(c.Entry)
			if err != nil {
				fmt.Println("run:", err)
				continue
			}
			fmt.Printf("START returned %d\n", result)
		case "quit", "exit":
			return nil
		default:
			fmt.Printf("unknown command %q; try help\n", fields[0])
		}
	}
}
