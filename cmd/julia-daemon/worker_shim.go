package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"jdaemon/internal/worker"
)

// newWorkerShimCommand is the hidden subcommand a spawned worker process
// runs under, grounded on the teacher's hidden "internal-server" subcommand
// (cmd/internal.go) and its StartDaemon/EnsureDaemonIsRunning self-reexec
// pattern (internal/daemon/client.go): jdaemon has no embedded host-language
// runtime, so the conductor's own binary plays the role of
// JULIA_DAEMON_WORKER_EXECUTABLE by re-execing itself into this subcommand
// unless an operator points WORKER_EXECUTABLE at a real one.
func newWorkerShimCommand() *cobra.Command {
	var controlSocket string
	var workerID uint32
	var ttlSeconds int
	var maxClients int

	cmd := &cobra.Command{
		Use:    "internal-worker-shim",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkerShim(controlSocket, workerID, ttlSeconds, maxClients)
		},
	}
	cmd.Flags().StringVar(&controlSocket, "control-socket", "", "path to the conductor's per-worker control socket")
	cmd.Flags().Uint32Var(&workerID, "worker-id", 0, "this worker's monotonic id")
	cmd.Flags().IntVar(&ttlSeconds, "ttl", 7200, "idle TTL in seconds")
	cmd.Flags().IntVar(&maxClients, "max-clients", 1, "maximum concurrent sessions")
	return cmd
}

func runWorkerShim(controlSocket string, workerID uint32, ttlSeconds, maxClients int) error {
	if controlSocket == "" {
		return fmt.Errorf("--control-socket is required")
	}

	conn, err := dialWithRetry(controlSocket, 2*time.Second)
	if err != nil {
		return fmt.Errorf("connect to conductor control socket: %w", err)
	}
	defer conn.Close()

	shim := worker.NewShim(workerID, worker.NullEvaluator{}, time.Duration(ttlSeconds)*time.Second, maxClients)
	return shim.Serve(context.Background(), conn)
}

func dialWithRetry(path string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	return nil, lastErr
}
