package conductor

import (
	"os"
	"path/filepath"

	"jdaemon/internal/core"
	"jdaemon/internal/wire"
)

// ResolveProjectPath computes the pool bucket key for a client, per
// spec.md §9's resolution order: the last --project=V switch wins (the
// whole switch list is scanned, never short-circuited, to avoid a
// known class of "first match wins" bugs), then JULIA_PROJECT, then a
// default user project, with "@." and "" meaning "search upward from cwd
// for a project marker file".
//
// defaultUserProject is injected by the caller (the conductor passes the
// user's home directory) rather than hardcoded here, so tests can supply a
// deterministic value.
func ResolveProjectPath(client wire.ClientInfo, defaultUserProject string) string {
	value, ok := wire.Last(client.Switches, "project")
	if !ok {
		if v, envOk := client.EnvMap()["JULIA_PROJECT"]; envOk {
			value, ok = v, true
		}
	}
	if !ok {
		return normalizeProject(defaultUserProject)
	}

	switch value {
	case "@.", "":
		if found := searchUpward(client.Cwd); found != "" {
			return found
		}
		return normalizeProject(defaultUserProject)
	default:
		return normalizeProject(resolveRelative(value, client.Cwd))
	}
}

// normalizeProject strips a trailing slash and expands a leading "~", so
// "/a/b/" and "/a/b" (and "~/proj") bucket to the same pool key.
func normalizeProject(path string) string {
	path = core.ExpandUser(path)
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

func resolveRelative(value, cwd string) string {
	expanded := core.ExpandUser(value)
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(cwd, expanded)
}

// projectMarkerNames are the files whose presence marks a directory as a
// project root during the "@."/"" upward search.
var projectMarkerNames = []string{"Project.toml", "JuliaProject.toml"}

// searchUpward walks from dir to the filesystem root looking for a
// project marker file, returning the first directory found to contain
// one, or "" if none exists anywhere in the ancestry.
func searchUpward(dir string) string {
	if dir == "" {
		return ""
	}
	cur := dir
	for {
		for _, marker := range projectMarkerNames {
			if _, err := os.Stat(filepath.Join(cur, marker)); err == nil {
				return cur
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return ""
		}
		cur = parent
	}
}
