package conductor

import (
	"context"
	"log/slog"
	"sync"
)

// ReserveSlot holds one pre-warmed, project-less worker ready to absorb
// the next client whose project isn't already warm in the pool, per
// spec.md §4.4's "Reserve warm-up": the conductor keeps exactly one spare
// worker alive, synthetically warmed with a no-op evaluation so its
// startup cost is paid before any real client needs it.
type ReserveSlot struct {
	mu     sync.Mutex
	worker *Worker
	spawn  func(ctx context.Context) (*Worker, error)
}

// NewReserveSlot builds an empty reserve; call Ensure to populate it.
func NewReserveSlot(spawn func(ctx context.Context) (*Worker, error)) *ReserveSlot {
	return &ReserveSlot{spawn: spawn}
}

// Ensure spawns a replacement worker if the slot is currently empty. It
// runs the dummy warm-up eval (spec.md: "-e nothing" analogue) so the
// worker's process and runtime startup cost is already paid by the time a
// real client consumes it.
func (r *ReserveSlot) Ensure(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.worker != nil {
		return nil
	}
	w, err := r.spawn(ctx)
	if err != nil {
		return err
	}
	if _, err := w.Eval("nothing"); err != nil {
		slog.Warn("reserve worker warm-up eval failed", "worker", w.ID, "err", err)
	}
	r.worker = w
	return nil
}

// Consume hands the reserve worker to the caller, binds it to projectPath,
// and leaves the slot empty; the caller is responsible for scheduling a
// replacement via Ensure (normally done asynchronously so the consuming
// client isn't delayed by the next warm-up).
func (r *ReserveSlot) Consume(projectPath string) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.worker
	r.worker = nil
	if w != nil {
		w.ProjectPath = projectPath
	}
	return w
}

// Peek reports whether the slot currently holds a worker, without
// consuming it.
func (r *ReserveSlot) Peek() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.worker != nil
}
