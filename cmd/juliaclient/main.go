// Command juliaclient is the jdaemon client: a thin, single-flight program
// that hands its invocation to a warm worker via the conductor and pumps
// stdin/stdout/stderr until the worker signals exit. See SPEC_FULL.md §4.3.
//
// Unlike julia-daemon, juliaclient is deliberately not built on cobra: its
// argument grammar (switches, "--" termination, a trailing program file and
// its own args) is the host language's own CLI surface, parsed by
// internal/wire.ParseSwitches rather than a subcommand framework.
package main

import (
	"os"

	"jdaemon/internal/client"
)

func main() {
	os.Exit(client.Run(os.Args[1:]))
}
