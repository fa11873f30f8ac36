package conductor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"jdaemon/internal/core"
	"jdaemon/internal/eventlog"
	"jdaemon/internal/wire"
)

// Daemon is the conductor process of spec.md §4.4: a single-threaded,
// sequential accept loop (each connection handled inline to completion,
// never handed to its own goroutine) plus small detached tasks for
// reserve-worker creation and per-worker TTL timers, which live inside the
// workers themselves.
type Daemon struct {
	Config core.WorkerDefaults

	listener net.Listener
	pool     *Pool
	reserve  *ReserveSlot
	envCache *wire.EnvCache
	log      *eventlog.Log

	defaultUserProject string

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a conductor with the given worker defaults. It does not bind
// the listening socket; call Run for that.
func New(cfg core.WorkerDefaults) (*Daemon, error) {
	log, err := eventlog.Open()
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		Config:   cfg,
		envCache: wire.NewEnvCache(5),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	d.pool = NewPool(func(ctx context.Context, projectPath string) (*Worker, error) {
		return d.spawnWorker(ctx, projectPath)
	})
	d.reserve = NewReserveSlot(func(ctx context.Context) (*Worker, error) {
		return d.spawnWorker(ctx, "")
	})

	home, _ := os.UserHomeDir()
	d.defaultUserProject = home

	return d, nil
}

func (d *Daemon) spawnWorker(ctx context.Context, projectPath string) (*Worker, error) {
	w, err := SpawnWorker(ctx, SpawnOptions{
		Executable: d.Config.Executable,
		Args:       d.Config.ArgsSlice(),
		TTL:        time.Duration(d.Config.TTLSeconds) * time.Second,
		MaxClients: d.Config.MaxClients,
	})
	if err != nil {
		d.log.Record("worker", "", "spawn_failed", err.Error())
		return nil, err
	}
	d.log.Record("worker", strconv.FormatUint(uint64(w.ID), 10), "spawned", projectPath)
	return w, nil
}

// Run binds the conductor's main socket and serves connections until the
// listener is closed or the context passed to Run is cancelled. It mirrors
// the teacher's Run(): stale-socket detection, PID-free since this daemon
// is supervised by socket presence rather than a pidfile (spec.md doesn't
// call for one), and a background reserve warm-up before accepting.
//
// serve_once is deliberately inline, not a per-connection goroutine: spec.md
// §4.4 measures a per-connection task spawn at ~10ms of added latency,
// which dominates a "hello world" invocation, so the accept loop handles
// one client to completion before accepting the next.
func (d *Daemon) Run(ctx context.Context) error {
	socketPath := core.ConductorSocketPath()
	if err := os.MkdirAll(core.ConductorRuntimeDir(), 0o700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}

	listener, err := d.bindListener(socketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	defer os.Remove(socketPath)

	slog.Info("conductor listening", "socket", socketPath)

	go func() {
		if err := d.reserve.Ensure(ctx); err != nil {
			slog.Warn("reserve warm-up failed", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			slog.Warn("accept error", "err", err)
			continue
		}

		// spec.md §4.3 Stage 2: "after connect, the conductor deletes the
		// listening socket file; the server immediately re-listens." The
		// already-accepted conn is unaffected by unlinking the path; a
		// fresh listener takes over before the next accept so no client
		// connecting concurrently ever sees ENOENT.
		os.Remove(socketPath)
		fresh, relistenErr := net.Listen("unix", socketPath)
		if relistenErr != nil {
			slog.Warn("failed to re-listen after accept", "err", relistenErr)
			conn.Close()
			continue
		}
		listener.Close()
		listener = fresh
		d.listener = listener

		d.handleConnection(ctx, conn)
	}
}

// bindListener reproduces the teacher's stale-socket recovery: if Listen
// fails because a socket file already exists, dial it first to tell a
// live daemon from an orphaned file before clobbering it.
func (d *Daemon) bindListener(socketPath string) (net.Listener, error) {
	ln, err := net.Listen("unix", socketPath)
	if err == nil {
		return ln, nil
	}
	if _, statErr := os.Stat(socketPath); statErr != nil {
		return nil, err
	}
	if conn, dialErr := net.Dial("unix", socketPath); dialErr == nil {
		conn.Close()
		return nil, fmt.Errorf("conductor already running on %s", socketPath)
	}
	if rmErr := os.Remove(socketPath); rmErr != nil {
		return nil, fmt.Errorf("remove stale socket: %w", rmErr)
	}
	return net.Listen("unix", socketPath)
}

// handleConnection runs the full handshake and dispatch for one client
// connection, per spec.md §4.4's per-client flow.
func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	frame, err := wire.DecodeInitialFrame(conn)
	if err != nil {
		slog.Warn("handshake decode failed", "err", err)
		return
	}

	env, err := d.resolveEnv(conn, frame.EnvFingerprint)
	if err != nil {
		slog.Warn("env resolution failed", "pid", frame.PID, "err", err)
		return
	}

	clientArgs := wire.ParseSwitches(frame.Args)
	info := wire.ClientInfo{
		TTY:            frame.TTY,
		PID:            frame.PID,
		Cwd:            frame.Cwd,
		EnvFingerprint: frame.EnvFingerprint,
		Env:            env,
		Args:           frame.Args,
		Switches:       clientArgs.Switches,
		ProgramFile:    clientArgs.ProgramFile,
	}

	switch {
	case wire.Has(info.Switches, "version", "v"):
		d.replyInline(conn, fmt.Sprintf("jdaemon %s\n", core.FormatVersion(core.Version)))
		return
	case wire.Has(info.Switches, "help", "h"):
		d.replyInline(conn, usageText)
		return
	}

	if restartProject, ok := wire.Last(info.Switches, "restart"); ok {
		n := d.pool.KillProject(normalizeRestartTarget(restartProject, info, d.defaultUserProject))
		d.replyInline(conn, fmt.Sprintf("restarted %d worker(s)\n", n))
		return
	}

	if subject, ok := wire.Last(info.Switches, "status"); ok {
		d.replyInline(conn, d.statusReport(subject))
		return
	}

	projectPath := ResolveProjectPath(info, d.defaultUserProject)

	w, err := d.acquireWorker(ctx, projectPath)
	if err != nil {
		d.replyInline(conn, fmt.Sprintf("error: %v\n", err))
		return
	}

	stdioPath, err := w.Dispatch(info)
	if err != nil {
		slog.Warn("dispatch failed", "worker", w.ID, "err", err)
		d.replyInline(conn, fmt.Sprintf("error: %v\n", err))
		return
	}

	signalsPath := strings.TrimSuffix(stdioPath, ".stdio") + ".signals"
	if err := wire.WriteSocketPaths(conn, stdioPath, signalsPath); err != nil {
		slog.Warn("failed to write socket paths", "err", err)
	}

	d.log.Record("client", strconv.FormatUint(uint64(frame.PID), 10), "dispatched", projectPath)
}

// acquireWorker implements spec.md §4.4's acquire order exactly: (2) an
// existing bucket resident under WORKER_MAXCLIENTS wins first, (3) the
// reserve slot is only consumed when the bucket has no room, and (4)
// spawning fresh is the last resort. Checking the bucket before touching
// the reserve matters even though both paths eventually call
// d.pool.Acquire: consuming the reserve unconditionally on every dispatch
// would grow a project's bucket past one resident whenever the reserve's
// async refill (kicked off below) finishes before the next same-project
// client arrives, which is exactly end-to-end scenario 5 of spec.md §8.
func (d *Daemon) acquireWorker(ctx context.Context, projectPath string) (*Worker, error) {
	if w := d.pool.TryAcquire(projectPath, d.Config.MaxClients); w != nil {
		return w, nil
	}

	if w := d.reserve.Consume(projectPath); w != nil {
		d.pool.Add(w)
		go func() {
			if err := d.reserve.Ensure(context.Background()); err != nil {
				slog.Warn("reserve replacement failed", "err", err)
			}
		}()
		return w, nil
	}

	return d.pool.Acquire(ctx, projectPath, d.Config.MaxClients)
}

func (d *Daemon) resolveEnv(conn net.Conn, fingerprint uint64) ([]wire.EnvPair, error) {
	if pairs, ok := d.envCache.Get(fingerprint); ok {
		return pairs, nil
	}
	if _, err := conn.Write([]byte{wire.CacheMissByte}); err != nil {
		return nil, err
	}
	pairs, err := wire.ReadEnvPairs(conn)
	if err != nil {
		return nil, err
	}
	d.envCache.Put(fingerprint, pairs)
	return pairs, nil
}

// replyInline sends msg to the client as a direct reply with no worker
// session, via the socket-paths frame's sentinel form (wire.InlineSentinel):
// help/version/restart never spawn a worker, so there is nothing to
// connect to, but reusing wire.WriteSocketPaths's framing rather than
// forking the protocol keeps the client's handshake reader single-pathed,
// matching the teacher's Response builder style (internal/daemon/response.go)
// of routing both success and "no-op" replies through one code path.
func (d *Daemon) replyInline(conn net.Conn, msg string) {
	if err := wire.WriteSocketPaths(conn, wire.InlineSentinel+msg, ""); err != nil {
		slog.Warn("failed to write inline reply", "err", err)
	}
}

// statusReport renders the event log for juliaclient --status. The log
// holds worker spawns and spawn failures, client dispatches and the
// conductor's shutdown; worker kills, reserve consumption, --restart and
// pool purges are not recorded. --status with no value lists the most recent events across every
// category; --status=SUBJECT (a project path or worker id) scopes to that
// subject's own history, oldest first.
func (d *Daemon) statusReport(subject string) string {
	var events []eventlog.Event
	var err error
	if subject == "" {
		events, err = d.log.Recent(20)
	} else {
		events, err = d.log.ForSubject(subject)
	}
	if err != nil {
		return fmt.Sprintf("error: %v\n", err)
	}
	if len(events) == 0 {
		return "no events recorded\n"
	}

	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "%s %-9s %-24s %-12s %s\n",
			e.Time.Format(time.RFC3339), e.Category, e.Subject, e.EventType, e.Details)
	}
	return b.String()
}

func normalizeRestartTarget(value string, info wire.ClientInfo, defaultUserProject string) string {
	if value != "" {
		return value
	}
	return ResolveProjectPath(info, defaultUserProject)
}

// Shutdown tears down every worker and stops accepting connections.
func (d *Daemon) Shutdown() {
	d.cancel()
	if d.listener != nil {
		d.listener.Close()
	}
	killed := d.pool.KillAll()
	d.log.Record("conductor", "", "shutdown", fmt.Sprintf("killed %d workers", killed))
	d.log.Close()
}

const usageText = `usage: juliaclient [switches] [programfile] [args...]
  -e, --eval EXPR       evaluate EXPR
  -E, --print EXPR      evaluate EXPR and print the result
  -L, --load FILE       load FILE before the program
      --project PATH    set the project path
      --restart[=PATH]  kill the workers for PATH (default: current project)
      --status [SUBJECT] show recent event log activity, optionally scoped
                         to one project path or worker id
      --version         print the daemon version
      --help            print this message
`
