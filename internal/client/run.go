package client

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"jdaemon/internal/core"
	"jdaemon/internal/wire"
)

// Run drives the full client lifecycle (spec.md §4.3 Stages 0-4) for one
// invocation of juliaclient and returns the process exit code.
func Run(rawArgs []string) int {
	rawMode, err := AcquireRawMode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jdaemon: failed to acquire terminal: %v\n", err)
		return 1
	}
	defer rawMode.Restore()

	serverPath := core.ConductorSocketPath()

	frame, env, err := buildInitialFrame(rawArgs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jdaemon: %v\n", err)
		return 1
	}

	hs, err := Dial(serverPath, frame, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jdaemon: %v\n", err)
		return 1
	}

	if hs.Inline != "" {
		fmt.Print(hs.Inline)
		return 0
	}

	stdio, signals, err := connectSessionSockets(hs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jdaemon: %v\n", err)
		return 1
	}
	defer stdio.Close()
	defer signals.Close()

	stopSigint := installSigintRelay(stdio)
	defer stopSigint()

	mux, err := NewMultiplexer(stdio, signals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jdaemon: %v\n", err)
		return 1
	}

	code, err := mux.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jdaemon: %v\n", err)
		return 1
	}
	return code
}

// connectSessionSockets dials the two per-session sockets the conductor
// handed back and unlinks each path immediately after connecting, so the
// worker's listener is free to be reused for its next accept — the
// client-side half of spec.md §4.3 Stage 3's "delete the socket files
// immediately after connect".
func connectSessionSockets(hs Handshake) (stdio, signals net.Conn, err error) {
	stdio, err = net.Dial("unix", hs.StdioPath)
	if err != nil {
		return nil, nil, fmt.Errorf("connect stdio socket: %w", err)
	}
	os.Remove(hs.StdioPath)

	signals, err = net.Dial("unix", hs.SignalsPath)
	if err != nil {
		stdio.Close()
		return nil, nil, fmt.Errorf("connect signals socket: %w", err)
	}
	os.Remove(hs.SignalsPath)

	return stdio, signals, nil
}

// installSigintRelay relays SIGINT to the worker by writing a single
// \x03 byte to the stdio socket, per spec.md §4.3: the client itself does
// not terminate on SIGINT, and SIGTERM is deliberately left uncaught.
func installSigintRelay(stdio net.Conn) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				stdio.Write([]byte{0x03})
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// buildInitialFrame assembles the handshake frame and the client's full
// environment (sent only on a cache miss) from the process's own
// identity and the raw CLI arguments.
func buildInitialFrame(rawArgs []string) (wire.InitialFrame, []wire.EnvPair, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return wire.InitialFrame{}, nil, fmt.Errorf("getwd: %w", err)
	}

	env := environPairs()
	fingerprint := wire.FingerprintPairs(env, core.EnvFilterPrefix())

	frame := wire.InitialFrame{
		TTY:            term.IsTerminal(int(os.Stdin.Fd())),
		PID:            uint32(os.Getpid()),
		Cwd:            cwd,
		EnvFingerprint: fingerprint,
		Args:           rawArgs,
	}
	return frame, env, nil
}

func environPairs() []wire.EnvPair {
	raw := os.Environ()
	pairs := make([]wire.EnvPair, 0, len(raw))
	for _, kv := range raw {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				pairs = append(pairs, wire.EnvPair{Key: kv[:i], Value: kv[i+1:]})
				break
			}
		}
	}
	return pairs
}
