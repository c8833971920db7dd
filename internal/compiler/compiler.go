// Package compiler is the driver: it owns the pipeline order and the phase
// state, and no domain logic. Singletons have no place here — the registry,
// symbol table and analysis results travel in a Context passed between
// phases. The label manager is not part of the Context; the code generator
// owns it.
package compiler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/albanread/nbcgo/internal/compiler/analysis"
	"github.com/albanread/nbcgo/internal/compiler/arm64"
	"github.com/albanread/nbcgo/internal/compiler/ast"
	"github.com/albanread/nbcgo/internal/compiler/codegen"
	"github.com/albanread/nbcgo/internal/compiler/jitmem"
	"github.com/albanread/nbcgo/internal/compiler/linker"
	"github.com/albanread/nbcgo/internal/compiler/passes"
	"github.com/albanread/nbcgo/internal/compiler/peephole"
	"github.com/albanread/nbcgo/internal/compiler/rt"
	"github.com/albanread/nbcgo/internal/compiler/symbols"
)

// Config is the driver configuration, bound to flags in cmd/nbc.
type Config struct {
	// PeepholePasses caps the optimizer's pass count; 0 means the default.
	PeepholePasses int
	// Listing emits a disassembly listing to TraceWriter after linking.
	Listing bool

	// Per-phase trace flags.
	TracePasses   bool
	TraceCodegen  bool
	TracePeephole bool
	TraceLinker   bool

	// TraceWriter receives traces and listings; nil means stderr.
	TraceWriter io.Writer

	// Resolver binds runtime symbol names to native addresses for the JIT
	// path. Nil leaves the registry unbound (object path only).
	Resolver func(name string) (uintptr, bool)
}

func errorsJoin(errs []error) error { return errors.Join(errs...) }

func (c *Config) tracer() *log.Logger {
	w := c.TraceWriter
	if w == nil {
		w = os.Stderr
	}
	return log.New(w, "", 0)
}

// Context carries the cross-phase state: tables, registry, analysis,
// scanner output and accumulated warnings.
type Context struct {
	Table     *symbols.Table
	Registry  *rt.Registry
	Analysis  *analysis.Result
	Externals []string
	Warnings  []passes.Warning
}

// Compiled is the JIT path's product. The entry pointer stays valid for
// the lifetime of Memory.
type Compiled struct {
	Image  *linker.Image
	Memory *jitmem.Manager
	// Entry is the address of START inside the executable page, of C type
	// int64 (*)().
	Entry uintptr

	Context *Context
}

// Close releases the executable memory; Entry is dead afterwards.
func (c *Compiled) Close() error {
	if c.Memory == nil {
		return nil
	}
	return c.Memory.Close()
}

// Frontend runs the AST passes and analyses in their fixed order and
// returns the prepared program plus context. The program is consumed and
// returned by move.
func Frontend(p *ast.Program, cfg *Config) (*ast.Program, *Context, error) {
	ctx := &Context{
		Table:    symbols.NewTable(),
		Registry: rt.NewRegistry(),
	}
	if cfg.Resolver != nil {
		ctx.Registry.BindAll(cfg.Resolver)
	}
	if err := ctx.Registry.PopulateSymbolTable(ctx.Table); err != nil {
		return nil, nil, err
	}

	trace := func(phase string) {
		if cfg.TracePasses {
			cfg.tracer().Printf("pass: %s", phase)
		}
	}

	trace("manifest resolution")
	p = passes.ResolveManifests(p)
	trace("global-initializer hoisting")
	p = passes.HoistGlobalInitializers(p)

	trace("symbol table construction")
	classes, classErrs := analysis.BuildClassTable(p)
	if len(classErrs) > 0 {
		return nil, nil, fmt.Errorf("class resolution: %w", errorsJoin(classErrs))
	}
	if err := analysis.BuildSymbols(p, ctx.Table, classes); err != nil {
		return nil, nil, fmt.Errorf("symbol construction: %w", err)
	}
	trace("analyzer")
	res, err := analysis.Analyze(p, ctx.Table, classes)
	ctx.Analysis = res
	if err != nil {
		return nil, nil, fmt.Errorf("analysis: %w", err)
	}

	trace("CREATE-method reordering")
	p = passes.ReorderCreateMethods(p)
	trace("short-circuit lowering")
	p = passes.LowerShortCircuit(p)
	trace("method inlining")
	p = passes.InlineMethods(p, res.Metrics)
	trace("constant folding")
	p = passes.FoldConstants(p, ctx.Table)
	trace("strength reduction")
	p = passes.ReduceStrength(p)
	trace("loop-invariant code motion")
	var warnings []passes.Warning
	p, warnings = passes.HoistLoopInvariants(p)
	ctx.Warnings = append(ctx.Warnings, warnings...)
	trace("retain analysis")
	p = passes.AnalyzeRetain(p, ctx.Table)
	trace("liveness analysis")
	analysis.AnalyzeProgram(p, ctx.Table, res)

	if len(ctx.Warnings) > 0 {
		passes.EmitWarnings(cfg.tracer().Writer(), ctx.Warnings)
	}
	return p, ctx, nil
}

// Backend lowers a prepared program into an optimized instruction stream.
func Backend(p *ast.Program, ctx *Context, cfg *Config) ([]arm64.Instruction, error) {
	ctx.Externals = codegen.ScanExternalFunctions(p, ctx.Registry)

	gen := codegen.NewGenerator(ctx.Table, ctx.Analysis, ctx.Registry)
	stream, err := gen.Program(p)
	if err != nil {
		return nil, fmt.Errorf("codegen: %w", err)
	}
	if cfg.TraceCodegen {
		t := cfg.tracer()
		for i := range stream {
			t.Printf("  %s", stream[i].String())
		}
	}

	opt := peephole.New(cfg.PeepholePasses)
	if cfg.TracePeephole {
		opt.SetTrace(cfg.tracer().Writer())
	}
	stream = opt.Run(stream)
	return stream, nil
}

// Compile runs the full JIT pipeline and returns the committed module. The
// caller owns the result and must Close it.
func Compile(p *ast.Program, cfg Config) (*Compiled, error) {
	p, ctx, err := Frontend(p, &cfg)
	if err != nil {
		return nil, err
	}
	stream, err := Backend(p, ctx, &cfg)
	if err != nil {
		return nil, err
	}

	// Size the executable block from the stream: four bytes per record
	// plus one veneer per external, then link at its base.
	bound := len(stream)*4 + len(ctx.Externals)*linker.VeneerSize + 64
	mem, err := jitmem.New(bound)
	if err != nil {
		return nil, err
	}

	lk := linker.New(ctx.Registry)
	img, err := lk.Link(uint64(mem.Base()), ctx.Externals, stream)
	if err != nil {
		mem.Close()
		return nil, err
	}
	if cfg.Listing || cfg.TraceLinker {
		linker.WriteListing(cfg.tracer().Writer(), img)
	}

	if err := mem.Write(0, img.Bytes()); err != nil {
		mem.Close()
		return nil, err
	}
	if err := mem.MakeExecutable(); err != nil {
		mem.Close()
		return nil, err
	}

	entry, err := img.EntryAddress("START")
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("program has no START routine: %w", err)
	}

	return &Compiled{
		Image:   img,
		Memory:  mem,
		Entry:   uintptr(entry),
		Context: ctx,
	}, nil
}
