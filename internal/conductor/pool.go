package conductor

import (
	"context"
	"sync"
)

// Pool buckets live workers by resolved project path, per spec.md §3's
// WorkerPool data model, and enforces the lookup-time "purge dead
// residents" invariant: any caller reading a bucket first drops workers
// whose process has exited, so a crashed worker is never handed a new
// client.
type Pool struct {
	mu      sync.Mutex
	buckets map[string][]*Worker

	spawn func(ctx context.Context, projectPath string) (*Worker, error)
}

// NewPool builds an empty pool. spawn is called to create a fresh worker
// bound to a project path when no warm one is available.
func NewPool(spawn func(ctx context.Context, projectPath string) (*Worker, error)) *Pool {
	return &Pool{
		buckets: make(map[string][]*Worker),
		spawn:   spawn,
	}
}

// purgeLocked drops dead workers from bucket key; caller holds p.mu.
func (p *Pool) purgeLocked(key string) []*Worker {
	live := p.buckets[key][:0]
	for _, w := range p.buckets[key] {
		if w.Alive() {
			live = append(live, w)
		}
	}
	if len(live) == 0 {
		delete(p.buckets, key)
		return nil
	}
	p.buckets[key] = live
	return live
}

// TryAcquire returns a warm worker bound to projectPath that is under the
// maxClients cap, or nil if the bucket has no room, without ever spawning
// one. Callers that have their own fallback source of warm workers (the
// conductor's reserve slot, spec.md §4.4 step 3) must check this before
// consuming it, so step 2 of the spec's acquire order ("if the bucket has
// a worker with client_count < WORKER_MAXCLIENTS, return it") is honoured
// ahead of step 3 ("else if a reserve worker exists...").
//
// Live residents' client counts are queried via their own control
// connection (Worker.ClientCount), outside p.mu, since that is a network
// round trip to the worker process, not a pool-local read.
func (p *Pool) TryAcquire(projectPath string, maxClients int) *Worker {
	p.mu.Lock()
	live := append([]*Worker(nil), p.purgeLocked(projectPath)...)
	p.mu.Unlock()

	if maxClients <= 0 {
		if len(live) > 0 {
			return live[0]
		}
		return nil
	}
	for _, w := range live {
		n, err := w.ClientCount()
		if err != nil {
			continue // unreachable worker; next lookup's purge will drop it
		}
		if n < maxClients {
			return w
		}
	}
	return nil
}

// Acquire returns a warm worker bound to projectPath if one is under the
// maxClients cap (via TryAcquire), else spawns a fresh one via spawn and
// adds it to the bucket.
func (p *Pool) Acquire(ctx context.Context, projectPath string, maxClients int) (*Worker, error) {
	if w := p.TryAcquire(projectPath, maxClients); w != nil {
		return w, nil
	}

	w, err := p.spawn(ctx, projectPath)
	if err != nil {
		return nil, err
	}
	w.ProjectPath = projectPath

	p.mu.Lock()
	p.buckets[projectPath] = append(p.buckets[projectPath], w)
	p.mu.Unlock()
	return w, nil
}

// Add registers an already-running worker under a project bucket, used to
// promote a consumed reserve slot into the pool proper.
func (p *Pool) Add(w *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets[w.ProjectPath] = append(p.buckets[w.ProjectPath], w)
}

// Remove drops a worker from its bucket without killing it (the caller is
// expected to do that, or it has already exited on its own).
func (p *Pool) Remove(w *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	bucket := p.buckets[w.ProjectPath]
	for i, cand := range bucket {
		if cand == w {
			p.buckets[w.ProjectPath] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(p.buckets[w.ProjectPath]) == 0 {
		delete(p.buckets, w.ProjectPath)
	}
}

// KillProject kills and removes every worker bound to projectPath,
// implementing spec.md §6's "restart" operation scoped to one project.
func (p *Pool) KillProject(projectPath string) int {
	p.mu.Lock()
	bucket := p.buckets[projectPath]
	delete(p.buckets, projectPath)
	p.mu.Unlock()

	for _, w := range bucket {
		w.Kill()
	}
	return len(bucket)
}

// KillAll tears down every worker in the pool, used on conductor shutdown.
func (p *Pool) KillAll() int {
	p.mu.Lock()
	all := make([]*Worker, 0)
	for _, bucket := range p.buckets {
		all = append(all, bucket...)
	}
	p.buckets = make(map[string][]*Worker)
	p.mu.Unlock()

	for _, w := range all {
		w.Kill()
	}
	return len(all)
}

// Sweep removes dead workers from every bucket; called periodically by the
// reaper (reaper.go) rather than only at lookup time, so crashed workers
// don't linger silently between client arrivals.
func (p *Pool) Sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.buckets {
		p.purgeLocked(key)
	}
}

// Size reports the total number of tracked workers across all buckets.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, bucket := range p.buckets {
		n += len(bucket)
	}
	return n
}
