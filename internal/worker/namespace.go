package worker

import (
	"path/filepath"
	"sync"

	"jdaemon/internal/wire"
)

// Namespace is a per-session evaluation context: cwd, environment
// overrides, and project path, scoped to one client.
//
// spec.md §4.2 describes "a change-directory to the client's cwd" and
// "environment overrides scoped to this session" in terms that read as
// process-global (os.Chdir / os.Setenv). That is unsafe the moment
// WORKER_MAXCLIENTS allows more than one concurrent session in a worker:
// two sessions racing os.Chdir would corrupt each other's relative paths.
// This is a deliberate deviation from the literal wording: cwd and env
// overrides are carried here as data and consulted explicitly by Eval/
// Include/REPL call sites, rather than mutated on the process. See
// DESIGN.md for the justification.
type Namespace struct {
	mu sync.RWMutex

	ID          uint64
	ProjectPath string
	Cwd         string
	Env         map[string]string // overrides layered over os.Environ()
}

// NewNamespace builds a namespace for a client, given its resolved project
// path and cwd. env carries any session-scoped overrides (currently none
// are derived from the wire protocol beyond the client's own process
// environment, but the slot exists for future switches).
func NewNamespace(id uint64, projectPath, cwd string, env []wire.EnvPair) *Namespace {
	m := make(map[string]string, len(env))
	for _, p := range env {
		m[p.Key] = p.Value
	}
	return &Namespace{
		ID:          id,
		ProjectPath: projectPath,
		Cwd:         cwd,
		Env:         m,
	}
}

// Getenv reads a variable from the namespace's overrides.
func (n *Namespace) Getenv(key string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.Env[key]
	return v, ok
}

// Setenv records a session-scoped override. It never touches the process
// environment; see the Namespace doc comment.
func (n *Namespace) Setenv(key, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Env[key] = value
}

// Resolve joins a possibly-relative path against this namespace's cwd,
// standing in for the "paths resolved relative to the client's original
// working directory" requirement without a real os.Chdir.
func (n *Namespace) Resolve(path string) string {
	n.mu.RLock()
	cwd := n.Cwd
	n.mu.RUnlock()
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cwd, path)
}

// Exit raises a systemExit carrying code, to be recovered by the session
// driver. It is the Namespace-scoped analogue of the host language's
// exit() builtin: it unwinds only the current session's Eval/REPL call,
// never the worker process.
func (n *Namespace) Exit(code int) error {
	return &systemExit{code: code}
}
