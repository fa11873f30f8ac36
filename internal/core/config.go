package core

import (
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// WorkerDefaults holds the tunables spec.md §6 exposes as environment
// variables. The HCL config file (if present) supplies defaults; env vars
// always take precedence, matching the teacher's env-overrides-file rule.
type WorkerDefaults struct {
	MaxClients      int    `hcl:"worker_maxclients,optional"`
	Args            string `hcl:"worker_args,optional"`
	Executable      string `hcl:"worker_executable,optional"`
	TTLSeconds      int    `hcl:"worker_ttl,optional"`
	EnvFilterPrefix string `hcl:"env_filter_prefix,optional"`
}

// Defaults returns the built-in defaults from spec.md §6, before any config
// file or environment override is applied.
//
// Deviation from spec.md §6's literal default ("julia"): this rewrite has
// no embedded host-language runtime to exec (see internal/worker's
// Evaluator boundary), so Executable defaults to "" meaning "re-exec this
// same binary as internal-worker-shim" (internal/conductor.SpawnWorker).
// Setting JULIA_DAEMON_WORKER_EXECUTABLE (or worker_executable in the HCL
// config) to a real interpreter path restores the literal spec behavior.
// See DESIGN.md.
func Defaults() WorkerDefaults {
	return WorkerDefaults{
		MaxClients:      1,
		Args:            "--startup-file=no",
		Executable:      "",
		TTLSeconds:      7200,
		EnvFilterPrefix: "JULIA_DAEMON_BENCH_",
	}
}

// LoadWorkerDefaults reads the optional HCL config file at path (if it
// exists), then applies any JULIA_DAEMON_* environment overrides on top,
// returning a fully resolved WorkerDefaults.
func LoadWorkerDefaults(path string) (WorkerDefaults, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		var fileCfg WorkerDefaults
		if err := hclsimple.DecodeFile(path, nil, &fileCfg); err != nil {
			return cfg, err
		}
		applyNonZero(&cfg, fileCfg)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyNonZero copies any field set in the file config over the defaults.
// HCL's `optional` tag leaves unset fields at their Go zero value, so a
// zero value and "not present in the file" are indistinguishable; that is
// an acceptable limitation for a handful of scalar tunables (an operator
// who wants worker_maxclients=0 must also say so via the env var, which
// spec.md already singles out as the "disable cap" case).
func applyNonZero(cfg *WorkerDefaults, file WorkerDefaults) {
	if file.MaxClients != 0 {
		cfg.MaxClients = file.MaxClients
	}
	if file.Args != "" {
		cfg.Args = file.Args
	}
	if file.Executable != "" {
		cfg.Executable = file.Executable
	}
	if file.TTLSeconds != 0 {
		cfg.TTLSeconds = file.TTLSeconds
	}
	if file.EnvFilterPrefix != "" {
		cfg.EnvFilterPrefix = file.EnvFilterPrefix
	}
}

func applyEnvOverrides(cfg *WorkerDefaults) {
	if v := os.Getenv("JULIA_DAEMON_WORKER_MAXCLIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxClients = n
		}
	}
	if v := os.Getenv("JULIA_DAEMON_WORKER_ARGS"); v != "" {
		cfg.Args = v
	}
	if v := os.Getenv("JULIA_DAEMON_WORKER_EXECUTABLE"); v != "" {
		cfg.Executable = v
	}
	if v := os.Getenv("JULIA_DAEMON_WORKER_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TTLSeconds = n
		}
	}
	if v := os.Getenv("JULIA_DAEMON_ENV_FILTER_PREFIX"); v != "" {
		cfg.EnvFilterPrefix = v
	}
}

// EnvFilterPrefix resolves the fingerprint filter prefix without touching
// the HCL config file, for use by the client binary: both sides of the
// handshake must agree on which env vars are excluded from the fingerprint
// hash (spec.md §4.1), but only the conductor reads the config file, so
// the client falls back to the built-in default plus the same env-var
// override.
func EnvFilterPrefix() string {
	prefix := Defaults().EnvFilterPrefix
	if v := os.Getenv("JULIA_DAEMON_ENV_FILTER_PREFIX"); v != "" {
		prefix = v
	}
	return prefix
}

// ArgsSlice whitespace-splits Args per spec.md §6.
func (w WorkerDefaults) ArgsSlice() []string {
	fields := strings.Fields(w.Args)
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}
