package client

import (
	"os"

	"golang.org/x/term"
)

// RawMode holds the saved terminal state for Stage 0 of spec.md §4.3: if
// stdin is a TTY, it is placed in raw mode (no ICANON/ECHO) so keystrokes
// reach the worker's REPL unbuffered. Restore must run on every exit path,
// including panics, which is why Run defers it immediately after
// acquisition rather than leaving restoration to an explicit call site —
// the same scoped-acquisition discipline the teacher uses around
// term.ReadPassword in internal/keyring/prompt.go, generalised here from
// "hold raw mode for one prompt" to "hold raw mode for the client's
// lifetime".
type RawMode struct {
	fd    int
	state *term.State
}

// AcquireRawMode puts stdin into raw mode if it is a terminal. If stdin is
// not a TTY, it returns a no-op RawMode (Restore does nothing).
func AcquireRawMode() (*RawMode, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return &RawMode{fd: -1}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &RawMode{fd: fd, state: state}, nil
}

// Restore returns the terminal to its prior state. Safe to call on a
// no-op RawMode or more than once.
func (r *RawMode) Restore() {
	if r == nil || r.fd < 0 || r.state == nil {
		return
	}
	term.Restore(r.fd, r.state)
	r.state = nil
}
