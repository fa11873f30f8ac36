package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jdaemon/internal/core"
	"jdaemon/internal/wire"
)

// Shim is the worker-side runtime supervisor of spec.md §4.2: it owns the
// control connection to the conductor, a per-client session table, and the
// worker's idle TTL timer. It is deliberately ignorant of the pool/reserve
// concepts living in internal/conductor; from the shim's point of view it
// is handed a stream of "client", "eval" and "softexit" control messages
// and nothing else.
type Shim struct {
	WorkerID  uint32
	Eval      Evaluator
	TTL       time.Duration
	MaxClient int

	mu       sync.Mutex
	sessions map[uint64]*Session
	idleAt   time.Time

	nextSeq atomic.Uint64

	exitOnce sync.Once
	exit     chan struct{}
}

// NewShim builds a worker shim. eval may be a NullEvaluator when the host
// runtime is not wired (e.g. the pre-warmed reserve slot).
func NewShim(workerID uint32, eval Evaluator, ttl time.Duration, maxClients int) *Shim {
	return &Shim{
		WorkerID:  workerID,
		Eval:      eval,
		TTL:       ttl,
		MaxClient: maxClients,
		sessions:  make(map[uint64]*Session),
		idleAt:    time.Now(),
		exit:      make(chan struct{}),
	}
}

// Serve runs the control loop against a single conductor connection until
// it closes or the TTL fires. It is the worker process's entire reason for
// being: cmd/julia-daemon's hidden worker-shim subcommand calls this and
// then exits.
func (s *Shim) Serve(ctx context.Context, conn net.Conn) error {
	control := wire.NewControlConn(conn)

	go s.ttlWatcher(conn)

	for {
		select {
		case <-s.exit:
			return nil
		default:
		}

		msg, err := control.ReadMessage()
		if err != nil {
			select {
			case <-s.exit:
				return nil
			default:
			}
			return err
		}

		switch msg.Tag {
		case wire.ControlTagClient:
			reply := s.handleClient(ctx, msg)
			if err := control.WriteReply(reply); err != nil {
				return err
			}
		case wire.ControlTagEval:
			reply := s.handleEval(ctx, msg)
			if err := control.WriteReply(reply); err != nil {
				return err
			}
		case wire.ControlTagSoftExit:
			if s.softExit() {
				control.WriteReply(wire.ControlReply{Tag: wire.ReplyTagAck})
				return nil
			}
			control.WriteReply(wire.ControlReply{Tag: wire.ReplyTagError, Error: "busy"})
		default:
			control.WriteReply(wire.ControlReply{Tag: wire.ReplyTagError, Error: "unknown tag " + msg.Tag})
		}
	}
}

// handleClient admits a new session: it listens on two fresh per-session
// unix sockets (stdio, signals), registers the session under lock, and
// replies with the stdio socket path; the signals path differs from it only
// in its ".signals" suffix, which the conductor derives. The actual session
// driver (Session.Run) is started by acceptSession once the client has
// connected both sockets.
func (s *Shim) handleClient(ctx context.Context, msg wire.ControlMessage) wire.ControlReply {
	if msg.Client == nil {
		return wire.ControlReply{Tag: wire.ReplyTagError, Error: "missing client info"}
	}

	s.mu.Lock()
	if s.MaxClient > 0 && len(s.sessions) >= s.MaxClient {
		s.mu.Unlock()
		return wire.ControlReply{Tag: wire.ReplyTagError, Error: "worker at capacity"}
	}
	s.mu.Unlock()

	id := s.nextSeq.Add(1)
	dir := core.WorkerRuntimeDir(s.WorkerID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return wire.ControlReply{Tag: wire.ReplyTagError, Error: err.Error()}
	}
	tag := uuid.NewString()
	stdioPath := filepath.Join(dir, fmt.Sprintf("session-%s.stdio", tag))
	sigPath := filepath.Join(dir, fmt.Sprintf("session-%s.signals", tag))

	stdioLn, err := net.Listen("unix", stdioPath)
	if err != nil {
		return wire.ControlReply{Tag: wire.ReplyTagError, Error: err.Error()}
	}
	sigLn, err := net.Listen("unix", sigPath)
	if err != nil {
		stdioLn.Close()
		os.Remove(stdioPath)
		return wire.ControlReply{Tag: wire.ReplyTagError, Error: err.Error()}
	}

	projectPath, _ := wire.Last(msg.Client.Switches, "project")
	ns := NewNamespace(id, projectPath, msg.Client.Cwd, msg.Client.Env)

	sess := &Session{
		ID:        id,
		Namespace: ns,
		Client:    *msg.Client,
		Started:   time.Now(),
		stdioLn:   stdioLn,
		signalLn:  sigLn,
		stdioPath: stdioPath,
		sigPath:   sigPath,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	go s.acceptSession(ctx, sess)

	return wire.ControlReply{Tag: wire.ReplyTagSocket, SocketKind: "stdio", Path: stdioPath, Result: fmt.Sprintf("%d", id)}
}

// acceptSession waits for the conductor/client side to connect both
// per-session sockets, then drives the session and removes it on exit.
func (s *Shim) acceptSession(ctx context.Context, sess *Session) {
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		if len(s.sessions) == 0 {
			s.idleAt = time.Now()
		}
		s.mu.Unlock()
		sess.Close()
	}()

	stdio, err := sess.stdioLn.Accept()
	if err != nil {
		slog.Warn("session stdio accept failed", "session", sess.ID, "err", err)
		return
	}
	defer stdio.Close()

	signals, err := sess.signalLn.Accept()
	if err != nil {
		slog.Warn("session signals accept failed", "session", sess.ID, "err", err)
		return
	}
	defer signals.Close()

	sess.Run(ctx, s.Eval, stdio, signals)
}

// clientCountExpr is the reserved pseudo-expression the conductor sends to
// read this worker's live session count (SPEC_FULL.md §4.2 resource
// accounting, mirrored from internal/conductor.clientCountExpr). It is
// intercepted here and never reaches the real Evaluator.
const clientCountExpr = "__client_count"

// handleEval services a one-shot "eval" control message against the
// reserve worker's ambient namespace (no attached client), used by the
// conductor's warm-up path (spec.md §4.4) and its client_count query.
func (s *Shim) handleEval(ctx context.Context, msg wire.ControlMessage) wire.ControlReply {
	if msg.Expr == clientCountExpr {
		s.mu.Lock()
		n := len(s.sessions)
		s.mu.Unlock()
		return wire.ControlReply{Tag: wire.ReplyTagResult, Result: fmt.Sprintf("%d", n)}
	}

	ns := NewNamespace(0, "", "", nil)
	out, err := s.Eval.Eval(ctx, ns, msg.Expr)
	if err != nil {
		return wire.ControlReply{Tag: wire.ReplyTagError, Error: err.Error()}
	}
	return wire.ControlReply{Tag: wire.ReplyTagResult, Result: out}
}

// softExit reports whether the worker can be retired: no live sessions.
// On success it also stops the TTL watcher and signals Serve to return.
func (s *Shim) softExit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) != 0 {
		return false
	}
	s.exitOnce.Do(func() { close(s.exit) })
	return true
}

// ttlWatcher enforces spec.md §4.2's idle TTL: if the worker has had zero
// sessions for TTL continuously, it signals its own exit. A fresh client
// arriving resets the clock implicitly, since idleAt is only set when the
// session count drops back to zero. On expiry it also closes conn, so a
// Serve loop blocked reading the next control message returns.
func (s *Shim) ttlWatcher(conn net.Conn) {
	if s.TTL <= 0 {
		return
	}
	ticker := time.NewTicker(s.TTL / 4)
	defer ticker.Stop()
	for {
		select {
		case <-s.exit:
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := len(s.sessions) == 0 && time.Since(s.idleAt) >= s.TTL
			s.mu.Unlock()
			if idle {
				s.exitOnce.Do(func() { close(s.exit) })
				conn.Close()
				return
			}
		}
	}
}
