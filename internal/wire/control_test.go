package wire

import (
	"bytes"
	"testing"
)

type loopback struct {
	bytes.Buffer
}

func TestControlMessageRoundTrip(t *testing.T) {
	var buf loopback
	conn := NewControlConn(&buf)

	project := "/path/to/proj"
	msg := ControlMessage{
		Tag: ControlTagClient,
		Client: &ClientInfo{
			TTY: true,
			PID: 42,
			Cwd: "/home/user",
			Switches: []Switch{
				{Name: "project", Value: project},
			},
		},
	}
	if err := conn.WriteMessage(msg); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if got.Tag != ControlTagClient || got.Client == nil || got.Client.PID != 42 {
		t.Fatalf("got %+v", got)
	}
}

func TestControlReplyRoundTrip(t *testing.T) {
	var buf loopback
	conn := NewControlConn(&buf)

	reply := ControlReply{Tag: ReplyTagSocket, SocketKind: "stdio", Path: "/tmp/x.sock"}
	if err := conn.WriteReply(reply); err != nil {
		t.Fatalf("WriteReply() error = %v", err)
	}

	got, err := conn.ReadReply()
	if err != nil {
		t.Fatalf("ReadReply() error = %v", err)
	}
	if got != reply {
		t.Fatalf("got %+v, want %+v", got, reply)
	}
}
