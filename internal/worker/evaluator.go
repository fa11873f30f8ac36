// Package worker implements the in-worker runtime shim from spec.md §4.2:
// the control-message loop that accepts per-client sessions, materialises
// an isolated namespace for each, and signals exit status back to the
// client over the signals socket.
//
// The actual "evaluate this program" primitive is an opaque collaborator
// per spec.md §1 ("the core treats evaluating a program in this context as
// an opaque primitive provided by the host language"); it is represented
// here by the Evaluator interface so the session/namespace/exit-signalling
// machinery can be fully exercised without an embedded interpreter.
package worker

import (
	"context"
	"fmt"
	"io"
)

// REPLIO is the terminal-facing handle passed to Evaluator.REPL. Per
// spec.md §4.2's "REPL adaptor contract", any raw-mode/TTY-handle queries
// the host REPL would normally make must be no-ops here, because the
// "terminal" is a socket, not a real TTY; Color/Banner/History are decided
// by the shim and simply passed in.
type REPLIO struct {
	In      io.Reader
	Out     io.Writer
	Color   bool
	Banner  bool
	History bool
}

// Evaluator is the host language runtime's evaluation boundary.
type Evaluator interface {
	// Eval evaluates expr in ns's top scope and returns its printable result.
	Eval(ctx context.Context, ns *Namespace, expr string) (string, error)
	// Include evaluates the contents of path in ns's top scope.
	Include(ctx context.Context, ns *Namespace, path string) error
	// REPL runs an interactive read-eval-print loop against ns until EOF
	// or an exit is requested.
	REPL(ctx context.Context, ns *Namespace, io REPLIO) error
}

// NullEvaluator is a no-op Evaluator: Eval and Include succeed trivially,
// REPL returns immediately. It backs every worker started through the
// internal-worker-shim subcommand, including the reserve worker's "nothing"
// warm-up eval, and exercises every control-flow path in tests without a
// real interpreter.
type NullEvaluator struct{}

func (NullEvaluator) Eval(ctx context.Context, ns *Namespace, expr string) (string, error) {
	return "", nil
}

func (NullEvaluator) Include(ctx context.Context, ns *Namespace, path string) error {
	return nil
}

func (NullEvaluator) REPL(ctx context.Context, ns *Namespace, rio REPLIO) error {
	return nil
}

// systemExit is the isolated per-namespace analogue of spec.md §4.2's
// "distinct exit/SystemExit pair (so exit(n) in user code does not
// terminate the worker)": raised by Namespace.Exit, caught by the session
// driver, never escapes the worker process itself.
type systemExit struct {
	code int
}

func (e *systemExit) Error() string {
	return fmt.Sprintf("exit(%d)", e.code)
}
