package wire

// ClientInfo is the conductor's fully resolved view of one client, per
// spec.md §3: immutable once parsed, env resolved lazily via the EnvCache.
type ClientInfo struct {
	TTY            bool      `json:"tty"`
	PID            uint32    `json:"pid"`
	Cwd            string    `json:"cwd"`
	EnvFingerprint uint64    `json:"env_fingerprint"`
	Env            []EnvPair `json:"env"`
	Args           []string  `json:"args"`
	Switches       []Switch  `json:"switches"`
	ProgramFile    *string   `json:"program_file,omitempty"`
}

// EnvMap returns Env as a lookup map, e.g. for TERM/color detection.
func (c ClientInfo) EnvMap() map[string]string {
	m := make(map[string]string, len(c.Env))
	for _, p := range c.Env {
		m[p.Key] = p.Value
	}
	return m
}
