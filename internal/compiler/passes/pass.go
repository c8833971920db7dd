// Package passes holds the AST rewriters. Each pass consumes an owned
// Program and returns an owned (possibly the same) Program; none keeps state
// across invocations. The driver applies them in the fixed order:
//
//	manifest resolution → global-initializer hoisting → symbol table
//	construction → analyzer → CREATE-method reordering → short-circuit
//	lowering → method inlining → constant folding → strength reduction →
//	loop-invariant code motion → retain analysis → liveness analysis.
package passes

import (
	"fmt"
	"io"
)

// Warning is a non-fatal pass diagnostic (e.g. a cancelled hoist). Passes
// warn rather than silently corrupt.
type Warning struct {
	Pass    string
	Message string
}

// String implements fmt.Stringer.
func (w Warning) String() string { return fmt.Sprintf("%s: %s", w.Pass, w.Message) }

// EmitWarnings writes warnings to w, if any.
func EmitWarnings(w io.Writer, warnings []Warning) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
