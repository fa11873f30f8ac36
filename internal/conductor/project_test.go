package conductor

import (
	"os"
	"path/filepath"
	"testing"

	"jdaemon/internal/wire"
)

func TestResolveProjectPathExplicitSwitchWins(t *testing.T) {
	info := wire.ClientInfo{
		Cwd: "/home/user",
		Switches: []wire.Switch{
			{Name: "project", Value: "/first"},
			{Name: "project", Value: "/second"},
		},
	}
	got := ResolveProjectPath(info, "/default")
	if got != "/second" {
		t.Fatalf("got %q, want last occurrence /second", got)
	}
}

func TestResolveProjectPathEnvFallback(t *testing.T) {
	info := wire.ClientInfo{
		Cwd: "/home/user",
		Env: []wire.EnvPair{{Key: "JULIA_PROJECT", Value: "/envproj"}},
	}
	got := ResolveProjectPath(info, "/default")
	if got != "/envproj" {
		t.Fatalf("got %q, want /envproj", got)
	}
}

func TestResolveProjectPathUpwardSearch(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "Project.toml"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	info := wire.ClientInfo{
		Cwd: sub,
		Switches: []wire.Switch{
			{Name: "project", Value: "@."},
		},
	}
	got := ResolveProjectPath(info, "/default")
	if got != root {
		t.Fatalf("got %q, want %q", got, root)
	}
}

func TestResolveProjectPathDefaultsWhenNoMarkerFound(t *testing.T) {
	root := t.TempDir()
	info := wire.ClientInfo{
		Cwd: root,
		Switches: []wire.Switch{
			{Name: "project", Value: "@."},
		},
	}
	got := ResolveProjectPath(info, "/default")
	if got != "/default" {
		t.Fatalf("got %q, want /default", got)
	}
}

func TestResolveProjectPathStripsTrailingSlash(t *testing.T) {
	info := wire.ClientInfo{
		Cwd: "/home/user",
		Switches: []wire.Switch{
			{Name: "project", Value: "/abs/path/"},
		},
	}
	got := ResolveProjectPath(info, "/default")
	if got != "/abs/path" {
		t.Fatalf("got %q, want trailing slash stripped", got)
	}
}
