package wire

import "testing"

func TestSignalParserSingleFrame(t *testing.T) {
	p := &SignalParser{}
	frame := EncodeSignalFrame("exit", "42")

	frames, err := p.Feed(frame)
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(frames) != 1 || frames[0].Name != "exit" || frames[0].Data != "42" {
		t.Fatalf("got %+v", frames)
	}
}

func TestSignalParserResilientToFragmentation(t *testing.T) {
	raw := append(EncodeSignalFrame("exit", "0"), EncodeSignalFrame("exit", "1")...)
	raw = append(raw, EncodeSignalFrame("exit", "2")...)

	for chunkSize := 1; chunkSize <= len(raw); chunkSize++ {
		p := &SignalParser{}
		var got []SignalFrame
		for i := 0; i < len(raw); i += chunkSize {
			end := i + chunkSize
			if end > len(raw) {
				end = len(raw)
			}
			frames, err := p.Feed(raw[i:end])
			if err != nil {
				t.Fatalf("chunkSize=%d: Feed() error = %v", chunkSize, err)
			}
			got = append(got, frames...)
		}
		if len(got) != 3 {
			t.Fatalf("chunkSize=%d: got %d frames, want 3: %+v", chunkSize, len(got), got)
		}
		for i, want := range []string{"0", "1", "2"} {
			if got[i].Name != "exit" || got[i].Data != want {
				t.Fatalf("chunkSize=%d: frame %d = %+v, want data %q", chunkSize, i, got[i], want)
			}
		}
	}
}

func TestSignalParserMissingSOH(t *testing.T) {
	p := &SignalParser{}
	if _, err := p.Feed([]byte("garbage")); err == nil {
		t.Fatal("expected error for frame missing leading SOH")
	}
}

func TestSignalParserDuplicateSTX(t *testing.T) {
	p := &SignalParser{}
	bad := []byte{SOH, 'e', 'x', STX, '1', STX, '2', EOT}
	if _, err := p.Feed(bad); err == nil {
		t.Fatal("expected error for duplicate STX")
	}
}

func TestSignalParserEOTWithoutSTX(t *testing.T) {
	p := &SignalParser{}
	bad := []byte{SOH, 'e', 'x', EOT}
	if _, err := p.Feed(bad); err == nil {
		t.Fatal("expected error for EOT without STX")
	}
}
