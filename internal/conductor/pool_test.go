package conductor

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"

	"jdaemon/internal/wire"
)

// fakeEvalConn stands in for a worker's control connection in tests that
// exercise pool bucketing rather than the real control wire format
// (covered by internal/wire's own tests): any "eval" control message gets
// an immediate reply carrying count, so Worker.ClientCount() round-trips
// without a real worker subprocess. Tests mutate count directly between
// Acquire calls to simulate sessions starting/ending.
type fakeEvalConn struct {
	mu    sync.Mutex
	count int
	buf   bytes.Buffer
}

func (f *fakeEvalConn) Write(p []byte) (int, error) {
	var msg wire.ControlMessage
	if err := json.Unmarshal(bytes.TrimRight(p, "\n"), &msg); err == nil && msg.Tag == wire.ControlTagEval {
		f.mu.Lock()
		count := f.count
		f.mu.Unlock()
		reply := wire.ControlReply{Tag: wire.ReplyTagResult, Result: strconv.Itoa(count)}
		data, _ := json.Marshal(reply)
		f.buf.Write(append(data, '\n'))
	}
	return len(p), nil
}

func (f *fakeEvalConn) Read(p []byte) (int, error) {
	return f.buf.Read(p)
}

func (f *fakeEvalConn) setCount(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = n
}

// fakeWorker builds a Worker with no backing process, so Alive() reports
// true unconditionally (cmd is nil) — enough to exercise pool bucketing
// without spawning a real subprocess.
func fakeWorker(id uint32) (*Worker, *fakeEvalConn) {
	conn := &fakeEvalConn{}
	return &Worker{ID: id, control: wire.NewControlConn(conn)}, conn
}

func TestPoolAcquireSpawnsThenReuses(t *testing.T) {
	spawnCount := 0
	conns := make(map[uint32]*fakeEvalConn)
	pool := NewPool(func(ctx context.Context, projectPath string) (*Worker, error) {
		spawnCount++
		w, conn := fakeWorker(uint32(spawnCount))
		conns[w.ID] = conn
		return w, nil
	})

	w1, err := pool.Acquire(context.Background(), "/proj", 1)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	conns[w1.ID].setCount(1) // simulate a client in residence

	w2, err := pool.Acquire(context.Background(), "/proj", 1)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if w2 == w1 {
		t.Fatalf("expected a fresh worker while w1 is busy")
	}
	if spawnCount != 2 {
		t.Fatalf("spawnCount = %d, want 2", spawnCount)
	}

	conns[w2.ID].setCount(0)
	w3, err := pool.Acquire(context.Background(), "/proj", 1)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if w3 != w2 {
		t.Fatalf("expected idle worker w2 to be reused")
	}
	if spawnCount != 2 {
		t.Fatalf("spawnCount = %d, want still 2 after reuse", spawnCount)
	}
}

func TestPoolAcquireZeroMaxClientsAlwaysReusesFirstWorker(t *testing.T) {
	spawnCount := 0
	conns := make(map[uint32]*fakeEvalConn)
	pool := NewPool(func(ctx context.Context, projectPath string) (*Worker, error) {
		spawnCount++
		w, conn := fakeWorker(uint32(spawnCount))
		conns[w.ID] = conn
		return w, nil
	})

	w1, err := pool.Acquire(context.Background(), "/proj", 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	conns[w1.ID].setCount(1)

	w2, err := pool.Acquire(context.Background(), "/proj", 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if w2 != w1 {
		t.Fatalf("expected the first worker to be reused unconditionally when maxClients == 0")
	}
	if spawnCount != 1 {
		t.Fatalf("spawnCount = %d, want 1", spawnCount)
	}
}

func TestPoolAcquireReusesUnderMaxClientsCap(t *testing.T) {
	spawnCount := 0
	conns := make(map[uint32]*fakeEvalConn)
	pool := NewPool(func(ctx context.Context, projectPath string) (*Worker, error) {
		spawnCount++
		w, conn := fakeWorker(uint32(spawnCount))
		conns[w.ID] = conn
		return w, nil
	})

	w1, err := pool.Acquire(context.Background(), "/proj", 2)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	conns[w1.ID].setCount(1) // one of two slots taken

	w2, err := pool.Acquire(context.Background(), "/proj", 2)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if w2 != w1 {
		t.Fatalf("expected w1 reused since client_count(1) < maxClients(2)")
	}
	if spawnCount != 1 {
		t.Fatalf("spawnCount = %d, want 1", spawnCount)
	}
}

func TestPoolKillProjectRemovesBucket(t *testing.T) {
	pool := NewPool(func(ctx context.Context, projectPath string) (*Worker, error) {
		w, _ := fakeWorker(1)
		return w, nil
	})
	if _, err := pool.Acquire(context.Background(), "/proj", 1); err != nil {
		t.Fatal(err)
	}
	if n := pool.KillProject("/proj"); n != 1 {
		t.Fatalf("KillProject() = %d, want 1", n)
	}
	if pool.Size() != 0 {
		t.Fatalf("expected empty pool after KillProject")
	}
}

func TestReserveSlotConsumeThenEnsure(t *testing.T) {
	spawned := 0
	reserve := NewReserveSlot(func(ctx context.Context) (*Worker, error) {
		spawned++
		w, _ := fakeWorker(uint32(spawned))
		return w, nil
	})

	if reserve.Peek() {
		t.Fatalf("expected empty reserve before Ensure")
	}
	if err := reserve.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if !reserve.Peek() {
		t.Fatalf("expected populated reserve after Ensure")
	}

	w := reserve.Consume("/proj")
	if w == nil {
		t.Fatalf("expected a worker from Consume")
	}
	if w.ProjectPath != "/proj" {
		t.Fatalf("ProjectPath = %q, want /proj", w.ProjectPath)
	}
	if reserve.Peek() {
		t.Fatalf("expected reserve empty immediately after Consume")
	}
}
