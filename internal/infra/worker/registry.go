package worker

import (
	"sync"

	"slideshow-batch/internal/domain"
)

// CancelFlag is the shared cooperative-cancel signal for one running batch.
// Cancel is idempotent; observers poll Cancelled or select on Done. In-flight
// external calls are never aborted; only not-yet-dispatched work reads the
// flag.
type CancelFlag struct {
	once sync.Once
	ch   chan struct{}
}

func NewCancelFlag() *CancelFlag {
	return &CancelFlag{ch: make(chan struct{})}
}

func (f *CancelFlag) Cancel() {
	f.once.Do(func() { close(f.ch) })
}

func (f *CancelFlag) Cancelled() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

func (f *CancelFlag) Done() <-chan struct{} { return f.ch }

// Registry tracks the batches currently being coordinated in this process and
// hands their cancel flags to the API layer. It also enforces the concurrent
// batch ceiling.
type Registry struct {
	mu    sync.Mutex
	flags map[string]*CancelFlag
	max   int
}

func NewRegistry(maxConcurrent int) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Registry{flags: make(map[string]*CancelFlag), max: maxConcurrent}
}

func (r *Registry) Register(batchID string) (*CancelFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flags[batchID]; ok {
		return nil, domain.ErrAlreadyExists
	}
	if len(r.flags) >= r.max {
		return nil, domain.ErrTooManyBatches
	}
	f := NewCancelFlag()
	r.flags[batchID] = f
	return f, nil
}

func (r *Registry) Unregister(batchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flags, batchID)
}

func (r *Registry) Lookup(batchID string) (*CancelFlag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[batchID]
	return f, ok
}

// Cancel flips the flag of a running batch. Returns false when the batch is
// not coordinated by this process.
func (r *Registry) Cancel(batchID string) bool {
	r.mu.Lock()
	f, ok := r.flags[batchID]
	r.mu.Unlock()
	if ok {
		f.Cancel()
	}
	return ok
}

func (r *Registry) Capacity() int { return r.max }

func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flags)
}
