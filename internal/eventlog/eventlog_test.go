package eventlog

import "testing"

func TestRecordAndRecent(t *testing.T) {
	log, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer log.Close()

	if err := log.Record("worker", "42", "spawned", "bound to /proj"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := log.Record("reserve", "", "consumed", ""); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	events, err := log.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != "consumed" {
		t.Fatalf("expected newest-first ordering, got %+v", events[0])
	}
}

func TestForSubject(t *testing.T) {
	log, err := Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer log.Close()

	log.Record("worker", "7", "spawned", "")
	log.Record("worker", "8", "spawned", "")
	log.Record("worker", "7", "killed", "")

	events, err := log.ForSubject("7")
	if err != nil {
		t.Fatalf("ForSubject() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].EventType != "spawned" || events[1].EventType != "killed" {
		t.Fatalf("expected oldest-first ordering, got %+v", events)
	}
}
