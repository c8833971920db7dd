// Command nbc drives the compiler core: it reads a serialized AST, runs the
// pipeline, and either commits the result to JIT memory or writes an ELF
// relocatable object. A watch mode recompiles on input change and an
// interactive console inspects the compiled module.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/albanread/nbcgo/internal/compiler"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/linker"
)

func main() {
	var (
		backend       = flag.String("backend", "jit", "output backend: jit or object")
		output        = flag.String("o", "out.o", "object file path (object backend)")
		peepholeCount = flag.Int("peephole-passes", 0, "peephole pass count (0 = default)")
		listing       = flag.Bool("listing", false, "emit an assembly listing")
		tracePasses   = flag.Bool("trace-passes", false, "trace AST passes")
		traceCodegen  = flag.Bool("trace-codegen", false, "trace code generation")
		tracePeep     = flag.Bool("trace-peephole", false, "trace peephole rewrites")
		traceLinker   = flag.Bool("trace-linker", false, "trace linking")
		listRuntime   = flag.Bool("list-runtime", false, "list the runtime registry and exit")
		watch         = flag.Bool("watch", false, "recompile whenever the input file changes")
		console       = flag.Bool("console", false, "open the inspector console after compiling")
		run           = flag.Bool("run", false, "call START after the JIT commit")
	)
	flag.Parse()

	cfg := compiler.Config{
		PeepholePasses: *peepholeCount,
		Listing:        *listing,
		TracePasses:    *tracePasses,
		TraceCodegen:   *traceCodegen,
		TracePeephole:  *tracePeep,
		TraceLinker:    *traceLinker,
		TraceWriter:    os.Stderr,
		Resolver:       runtimeResolver(),
	}

	if *listRuntime {
		listRegistry(os.Stdout)
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: nbc [flags] <program.ast.json>")
		os.Exit(2)
	}
	input := flag.Arg(0)

	if *watch {
		if err := watchLoop(input, cfg, *backend, *output, *run); err != nil {
			fatal(err)
		}
		return
	}

	if err := compileOnce(input, cfg, *backend, *output, *run, *console); err != nil {
		fatal(err)
	}
}

// runtimeResolver binds runtime symbol names to native addresses. The
// runtime library is an external collaborator: embedders hand their own
// resolver to compiler.Config. The standalone CLI ships without one, so
// programs that call the runtime target the object backend and link against
// a runtime there; runtime-free programs JIT and run directly.
func runtimeResolver() func(string) (uintptr, bool) {
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "nbc:", err)
	os.Exit(1)
}

func loadProgram(path string) (*ast.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ast.DecodeJSON(data)
}

func compileOnce(input string, cfg compiler.Config, backend, output string, run, console bool) error {
	p, err := loadProgram(input)
	if err != nil {
		return err
	}

	if backend == "object" {
		return writeObject(p, cfg, output)
	}

	compiled, err := compiler.Compile(p, cfg)
	if err != nil {
		return err
	}
	defer compiled.Close()

	printStats(os.Stdout, compiled)
	if run {
		result, err := compiler.Call(compiled.Entry)
		if err != nil {
			return err
		}
		fmt.Printf("START returned %d\n", result)
	}
	if console {
		return runConsole(compiled)
	}
	return nil
}

func writeObject(p *ast.Program, cfg compiler.Config, output string) error {
	p, ctx, err := compiler.Frontend(p, &cfg)
	if err != nil {
		return err
	}
	stream, err := compiler.Backend(p, ctx, &cfg)
	if err != nil {
		return err
	}
	lk := linker.New(ctx.Registry)
	img, externals, err := lk.LinkObject(stream)
	if err != nil {
		return err
	}
	if cfg.Listing {
		linker.WriteListing(os.Stderr, img)
	}
	data := linker.WriteELF(img, externals, ctx.Registry)
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes, %d imports)\n", output, len(data), len(externals))
	return nil
}

// watchLoop recompiles the input whenever it changes on disk.
func watchLoop(input string, cfg compiler.Config, backend, output string, run bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(input); err != nil {
		return err
	}

	compile := func() {
		if err := compileOnce(input, cfg, backend, output, run, false); err != nil {
			fmt.Fprintln(os.Stderr, "nbc:", err)
		}
	}
	compile()

	fmt.Fprintf(os.Stderr, "watching %s\n", input)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				compile()
				// Editors replace files; re-arm the watch.
				_ = watcher.Add(input)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "nbc: watch:", err)
		}
	}
}
