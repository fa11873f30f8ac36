package client

import (
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"jdaemon/internal/wire"
)

// Multiplexer implements spec.md §4.3 Stage 4: a completion-based loop
// with exactly three outstanding reads, keyed by tag, over
// golang.org/x/sys/unix epoll — the fallback spec.md §9 explicitly
// sanctions ("Alternative implementations may fall back to poll/epoll").
//
// Each source fd is registered once; on every readiness notification the
// loop reads whatever is available, forwards it to the tag's sink, and
// leaves the same fd registered for the next completion (epoll is
// level-triggered here, so no explicit re-arm is required, unlike an
// io_uring-style one-shot completion queue).
type Multiplexer struct {
	epfd int
	tags map[int32]string

	stdin   int
	stdio   net.Conn
	signals net.Conn

	stdioFile   *os.File
	signalsFile *os.File

	parser   wire.SignalParser
	exitCode int
	gotExit  bool
}

// NewMultiplexer registers stdin, the stdio session socket, and the
// signals session socket with a fresh epoll instance.
func NewMultiplexer(stdio, signals net.Conn) (*Multiplexer, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	m := &Multiplexer{epfd: epfd, tags: make(map[int32]string), stdin: int(os.Stdin.Fd()), stdio: stdio, signals: signals}

	if err := m.register(m.stdin, tagStdin); err != nil {
		unix.Close(epfd)
		return nil, err
	}

	stdioFile, stdioFd, err := fileAndFd(stdio)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	m.stdioFile = stdioFile
	if err := m.register(stdioFd, tagStdout); err != nil {
		unix.Close(epfd)
		return nil, err
	}

	signalsFile, signalsFd, err := fileAndFd(signals)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	m.signalsFile = signalsFile
	if err := m.register(signalsFd, tagSignals); err != nil {
		unix.Close(epfd)
		return nil, err
	}

	return m, nil
}

const (
	tagStdin   = "stdin"
	tagStdout  = "stdout"
	tagSignals = "signals"
)

// fileAndFd obtains a raw, epoll-watchable fd for a unix-domain net.Conn by
// duplicating its descriptor via File(). The duplicate is only used as an
// epoll readiness source; actual reads go through the original net.Conn,
// since both descriptors reference the same open socket.
func fileAndFd(conn net.Conn) (*os.File, int, error) {
	sc, ok := conn.(interface{ File() (*os.File, error) })
	if !ok {
		return nil, 0, fmt.Errorf("connection does not expose a raw fd")
	}
	f, err := sc.File()
	if err != nil {
		return nil, 0, err
	}
	return f, int(f.Fd()), nil
}

// register arms fd with epoll and records its tag in a local fd->tag map:
// EpollEvent's data field layout (Pad on some architectures, absent on
// others) isn't something to rely on across GOARCH, so completions are
// routed by looking the returned Fd back up here instead.
func (m *Multiplexer) register(fd int, tag string) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return err
	}
	m.tags[int32(fd)] = tag
	return nil
}

// Run pumps completions until an exit signal frame has been observed and
// no further events are immediately ready, per spec.md §4.3's termination
// rule, then returns the exit code clamped to 0..255.
func (m *Multiplexer) Run() (int, error) {
	defer unix.Close(m.epfd)
	defer m.stdioFile.Close()
	defer m.signalsFile.Close()

	events := make([]unix.EpollEvent, 8)
	buf := make([]byte, 32*1024)

	for {
		n, err := unix.EpollWait(m.epfd, events, 50)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, fmt.Errorf("epoll_wait: %w", err)
		}

		if n == 0 {
			if m.gotExit {
				return clampExit(m.exitCode), nil
			}
			continue
		}

		for _, ev := range events[:n] {
			switch m.tags[ev.Fd] {
			case tagStdin:
				if err := m.pumpStdin(buf); err != nil && err != io.EOF {
					return 0, err
				}
			case tagStdout:
				if err := m.pumpStdout(buf); err != nil && err != io.EOF {
					return 0, err
				}
			case tagSignals:
				if err := m.pumpSignals(buf); err != nil {
					return 0, err
				}
			}
		}

		if m.gotExit {
			return clampExit(m.exitCode), nil
		}
	}
}

func (m *Multiplexer) pumpStdin(buf []byte) error {
	nr, err := unix.Read(m.stdin, buf)
	if err != nil || nr == 0 {
		return io.EOF
	}
	_, werr := m.stdio.Write(buf[:nr])
	return werr
}

func (m *Multiplexer) pumpStdout(buf []byte) error {
	nr, err := m.stdio.Read(buf)
	if err != nil {
		return err
	}
	_, werr := os.Stdout.Write(buf[:nr])
	return werr
}

func (m *Multiplexer) pumpSignals(buf []byte) error {
	nr, err := m.signals.Read(buf)
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	frames, perr := m.parser.Feed(buf[:nr])
	if perr != nil {
		return fmt.Errorf("malformed signal frame: %w", perr)
	}
	for _, f := range frames {
		if f.Name != "exit" {
			return fmt.Errorf("unrecognised signal %q", f.Name)
		}
		var code int
		fmt.Sscanf(f.Data, "%d", &code)
		m.exitCode = code
		m.gotExit = true
	}
	return nil
}

func clampExit(code int) int {
	if code < 0 {
		return 0
	}
	if code > 255 {
		return 255
	}
	return code
}
