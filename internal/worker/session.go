package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"jdaemon/internal/wire"
)

// Session is one client's residence inside a worker, per spec.md §4.2:
// registered under the shim's lock with a creation timestamp, torn down
// under the same lock so TTL bookkeeping ("no sessions AND idle since")
// never races a concurrent attach.
type Session struct {
	ID        uint64
	Namespace *Namespace
	Client    wire.ClientInfo
	Started   time.Time

	stdioLn   net.Listener
	signalLn  net.Listener
	stdioPath string
	sigPath   string

	mu   sync.Mutex
	done bool
}

// colorFromClient decides ANSI color enablement per spec.md §4.2: an
// explicit --color switch wins outright; otherwise the default is yes iff
// TERM starts with "xterm", no otherwise (deliberately not an isatty
// check — the spec ties the default to TERM alone).
func colorFromClient(c wire.ClientInfo) bool {
	if v, ok := wire.Last(c.Switches, "color"); ok {
		switch v {
		case "yes", "on", "true":
			return true
		case "no", "off", "false":
			return false
		}
	}
	return strings.HasPrefix(c.EnvMap()["TERM"], "xterm")
}

// bannerFromClient decides whether the REPL prints its startup banner, per
// spec.md §4.2: --quiet/-q suppresses it, but an explicit --banner=yes/no
// always wins (auto falls back to the quiet-derived default).
func bannerFromClient(c wire.ClientInfo) bool {
	if v, ok := wire.Last(c.Switches, "banner"); ok {
		switch v {
		case "yes":
			return true
		case "no":
			return false
		}
	}
	return !wire.Has(c.Switches, "quiet", "q")
}

// historyFromClient decides whether the REPL persists command history, per
// spec.md §6's --history-file={yes|no} switch; absent the switch, history
// follows whether the client is attached to a real terminal.
func historyFromClient(c wire.ClientInfo) bool {
	if v, ok := wire.Last(c.Switches, "history-file"); ok {
		switch v {
		case "yes":
			return true
		case "no":
			return false
		}
	}
	return c.TTY
}

// Run drives one client's program through to completion: it executes any
// --eval/--print/--load switches in source order, falls back to the
// program file or an interactive REPL, and always emits exactly one exit
// signal frame over the signals connection before returning.
//
// result is the numeric exit code reported to the client; it is sent
// unclamped, and the client clamps it to 0..255.
func (s *Session) Run(ctx context.Context, eval Evaluator, stdio net.Conn, signals net.Conn) (result int) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker session panic", "session", s.ID, "panic", r)
			result = 1
		}
		s.sendExit(signals, result)
	}()

	rio := REPLIO{
		In:      stdio,
		Out:     stdio,
		Color:   colorFromClient(s.Client),
		Banner:  bannerFromClient(s.Client),
		History: historyFromClient(s.Client),
	}

	for _, sw := range s.Client.Switches {
		switch sw.Name {
		case "eval":
			if _, err := eval.Eval(ctx, s.Namespace, sw.Value); err != nil {
				return s.fail(stdio, err)
			}
		case "print":
			out, err := eval.Eval(ctx, s.Namespace, sw.Value)
			if err != nil {
				return s.fail(stdio, err)
			}
			fmt.Fprintln(stdio, out)
		case "load":
			if err := eval.Include(ctx, s.Namespace, s.Namespace.Resolve(sw.Value)); err != nil {
				return s.fail(stdio, err)
			}
		}
	}

	ranProgram := false
	if s.Client.ProgramFile != nil {
		var runErr error
		if *s.Client.ProgramFile == "-" {
			// spec.md §4.2 item 5: "-" means read the program text from
			// stdin rather than include a file literally named "-".
			text, readErr := io.ReadAll(stdio)
			if readErr != nil {
				return s.fail(stdio, readErr)
			}
			_, runErr = eval.Eval(ctx, s.Namespace, string(text))
		} else {
			runErr = eval.Include(ctx, s.Namespace, s.Namespace.Resolve(*s.Client.ProgramFile))
		}
		if runErr != nil {
			return s.fail(stdio, runErr)
		}
		ranProgram = true
	}

	// spec.md §4.2 item 6: the REPL runs when none of -i/--eval/--print/
	// program_file were requested; -i forces a REPL even after other work
	// already ran.
	forceREPL := wire.Has(s.Client.Switches, "i", "")
	needREPL := forceREPL || (!ranProgram && !hasEvalSwitch(s.Client.Switches))
	if needREPL {
		if err := eval.REPL(ctx, s.Namespace, rio); err != nil {
			return s.fail(stdio, err)
		}
	}
	return 0
}

// fail reports a non-systemExit error to the client before exiting, per
// spec.md §4.2 item 7 ("on any other unhandled error, display the error on
// stdio (if still open) and signal exit 1") and §7's UserCodeError: a
// systemExit is the host language's own exit()/SystemExit, already destined
// for the client via the exit signal frame, so it is never echoed to stdio.
func (s *Session) fail(stdio io.Writer, err error) int {
	var se *systemExit
	if errors.As(err, &se) {
		return se.code
	}
	fmt.Fprintf(stdio, "error: %s\n", err.Error())
	return 1
}

func hasEvalSwitch(switches []wire.Switch) bool {
	for _, sw := range switches {
		if sw.Name == "eval" || sw.Name == "print" {
			return true
		}
	}
	return false
}

func (s *Session) sendExit(signals net.Conn, code int) {
	if signals == nil {
		return
	}
	frame := wire.EncodeSignalFrame("exit", fmt.Sprintf("%d", code))
	if _, err := signals.Write(frame); err != nil {
		slog.Warn("failed to write exit signal frame", "session", s.ID, "err", err)
	}
}

// Close tears down the session's per-client listeners. Safe to call more
// than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if s.stdioLn != nil {
		s.stdioLn.Close()
	}
	if s.signalLn != nil {
		s.signalLn.Close()
	}
	os.Remove(s.stdioPath)
	os.Remove(s.sigPath)
}
