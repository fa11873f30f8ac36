package wire

import (
	"bytes"
	"fmt"
)

// Signal frame control bytes, spec.md §4.3: SOH name STX data EOT.
const (
	SOH byte = 0x01
	STX byte = 0x02
	EOT byte = 0x04
)

// maxSignalBuffer is the bounded buffer the parser tolerates before a
// frame is considered malformed (spec.md §4.3: "bounded (1 KiB) buffer").
const maxSignalBuffer = 1024

// SignalFrame is one decoded worker→client signal, e.g. {"exit", "42"}.
type SignalFrame struct {
	Name string
	Data string
}

// EncodeSignalFrame serialises a signal frame for the signals socket.
func EncodeSignalFrame(name, data string) []byte {
	buf := make([]byte, 0, len(name)+len(data)+3)
	buf = append(buf, SOH)
	buf = append(buf, name...)
	buf = append(buf, STX)
	buf = append(buf, data...)
	buf = append(buf, EOT)
	return buf
}

// SignalParser incrementally decodes the signal-frame stream, tolerating
// arbitrary fragmentation across reads (spec.md §8: "resilient to
// fragmentation").
type SignalParser struct {
	buf []byte
}

// Feed appends chunk to the parser's buffer and returns any complete
// frames found. The unconsumed remainder (a partial frame) is kept for the
// next call. An error indicates malformed framing per spec.md §4.3: no
// leading SOH, a duplicate STX within one frame, or an EOT before any STX.
func (p *SignalParser) Feed(chunk []byte) ([]SignalFrame, error) {
	p.buf = append(p.buf, chunk...)

	var frames []SignalFrame
	for len(p.buf) > 0 {
		if p.buf[0] != SOH {
			return frames, fmt.Errorf("wire: signal frame missing leading SOH")
		}

		rest := p.buf[1:]
		stx := bytes.IndexByte(rest, STX)

		var eotBeforeSTX int
		if stx >= 0 {
			eotBeforeSTX = bytes.IndexByte(rest[:stx], EOT)
		} else {
			eotBeforeSTX = bytes.IndexByte(rest, EOT)
		}
		if eotBeforeSTX >= 0 {
			return frames, fmt.Errorf("wire: signal frame has EOT before STX")
		}

		if stx < 0 {
			if len(p.buf) > maxSignalBuffer {
				return frames, fmt.Errorf("wire: signal frame exceeds %d byte buffer with no STX", maxSignalBuffer)
			}
			break // incomplete; wait for more data
		}

		body := rest[stx+1:]
		eot := bytes.IndexByte(body, EOT)
		if eot < 0 {
			if len(p.buf) > maxSignalBuffer {
				return frames, fmt.Errorf("wire: signal frame exceeds %d byte buffer with no EOT", maxSignalBuffer)
			}
			break // incomplete; wait for more data
		}
		if dup := bytes.IndexByte(body[:eot], STX); dup >= 0 {
			return frames, fmt.Errorf("wire: duplicate STX in signal frame")
		}

		name := string(rest[:stx])
		data := string(body[:eot])
		frames = append(frames, SignalFrame{Name: name, Data: data})

		// Advance past this frame: 1 (SOH) + stx + 1 (STX) + eot + 1 (EOT).
		consumed := 1 + stx + 1 + eot + 1
		p.buf = p.buf[consumed:]
	}

	return frames, nil
}
