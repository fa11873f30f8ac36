// Package client implements the client side of jdaemon, spec.md §4.3: a
// single-threaded, single-flight program that performs the handshake with
// the conductor and then pumps stdin/stdout/stderr and the signals stream
// until an exit frame arrives.
package client

import (
	"fmt"
	"net"
	"os"
	"strings"

	"jdaemon/internal/wire"
)

// Handshake is the outcome of Stages 1-3 of spec.md §4.3: either a pair of
// session socket paths to connect to, or an inline message (help/version/
// restart replies, which never spawn a worker).
type Handshake struct {
	StdioPath   string
	SignalsPath string
	Inline      string
}

// Dial performs Stages 1-3 against the conductor: connect, send the
// initial frame, answer a cache-miss if requested, and read back either
// session socket paths or an inline reply.
func Dial(serverPath string, frame wire.InitialFrame, env []wire.EnvPair) (Handshake, error) {
	if _, err := os.Stat(serverPath); err != nil {
		return Handshake{}, fmt.Errorf("conductor not running at %s (start it first)", serverPath)
	}

	conn, err := net.Dial("unix", serverPath)
	if err != nil {
		return Handshake{}, fmt.Errorf("connect to conductor: %w", err)
	}
	defer conn.Close()

	payload, err := frame.Encode()
	if err != nil {
		return Handshake{}, fmt.Errorf("encode handshake frame: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return Handshake{}, fmt.Errorf("send handshake frame: %w", err)
	}

	first := make([]byte, 1)
	stdioPath, signalsPath, err := readSocketPathsWithCacheMiss(conn, first, env)
	if err != nil {
		return Handshake{}, err
	}

	if strings.HasPrefix(stdioPath, wire.InlineSentinel) {
		return Handshake{Inline: strings.TrimPrefix(stdioPath, wire.InlineSentinel)}, nil
	}
	return Handshake{StdioPath: stdioPath, SignalsPath: signalsPath}, nil
}

// readSocketPathsWithCacheMiss implements spec.md §4.1's byte-0x3F
// disambiguation: a peeked first byte equal to CacheMissByte means "send
// your environment", anything else is the low byte of the socket-paths
// reply's first u16 length and must be fed back into the decoder rather
// than discarded.
func readSocketPathsWithCacheMiss(conn net.Conn, firstByte []byte, env []wire.EnvPair) (string, string, error) {
	if _, err := conn.Read(firstByte); err != nil {
		return "", "", fmt.Errorf("read handshake response: %w", err)
	}

	if firstByte[0] == wire.CacheMissByte {
		if err := wire.WriteEnvPairs(conn, env); err != nil {
			return "", "", fmt.Errorf("send environment: %w", err)
		}
		return wire.ReadSocketPaths(conn)
	}

	return wire.ReadSocketPaths(&prependReader{first: firstByte[0], r: conn})
}

// prependReader splices a single already-read byte back in front of the
// remaining stream, since the cache-hit path has to inspect one byte to
// make the branch decision but that byte is semantically part of the
// socket-paths frame.
type prependReader struct {
	first byte
	used  bool
	r     interface{ Read([]byte) (int, error) }
}

func (p *prependReader) Read(buf []byte) (int, error) {
	if !p.used {
		p.used = true
		buf[0] = p.first
		return 1, nil
	}
	return p.r.Read(buf)
}
