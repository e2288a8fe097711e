//go:build !integration

package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/adapter"
	"slideshow-batch/internal/domain/ports/repository"
)

// ---- in-memory state store ----

type memStore struct {
	mu         sync.Mutex
	batches    map[string]*model.Batch
	links      map[string]*model.Link
	variations map[string]*model.Variation
}

func newMemStore() *memStore {
	return &memStore{
		batches:    make(map[string]*model.Batch),
		links:      make(map[string]*model.Link),
		variations: make(map[string]*model.Variation),
	}
}

func (s *memStore) addBatch(b *model.Batch) { s.batches[b.ID] = b }
func (s *memStore) addLink(l *model.Link)   { s.links[l.ID] = l }

func (s *memStore) addVariation(v *model.Variation) { s.variations[v.ID] = v }

type memBatchRepo struct{ s *memStore }

var _ repository.BatchRepository = (*memBatchRepo)(nil)

func (r *memBatchRepo) Create(ctx context.Context, tx repository.Tx, b *model.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.batches[b.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *b
	r.s.batches[b.ID] = &cp
	return nil
}

func (r *memBatchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memBatchRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.BatchStatus, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !b.Status.CanTransition(status) {
		return domain.ErrBatchTerminal
	}
	b.Status = status
	if errMsg != "" {
		b.ErrorMessage = errMsg
	}
	now := time.Now()
	if status == model.BatchStatusProcessing && b.StartedAt == nil {
		b.StartedAt = &now
	}
	if status.Terminal() {
		b.CompletedAt = &now
	}
	return nil
}

func (r *memBatchRepo) SetDriveFolder(ctx context.Context, tx repository.Tx, id, folderURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b, ok := r.s.batches[id]; ok {
		b.DriveFolderURL = folderURL
	}
	return nil
}

func (r *memBatchRepo) IncrementRollup(ctx context.Context, tx repository.Tx, id string, field repository.RollupField, delta int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch field {
	case repository.RollupCompletedLinks:
		b.CompletedLinks += delta
	case repository.RollupFailedLinks:
		b.FailedLinks += delta
		if b.FailedLinks < 0 {
			b.FailedLinks = 0
		}
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}

func (r *memBatchRepo) BeginPass(ctx context.Context, tx repository.Tx, id, passID string, pass int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !b.Status.Terminal() {
		return domain.ErrBatchNotTerminal
	}
	b.Status = model.BatchStatusProcessing
	b.Pass = pass
	b.LastPassID = passID
	b.ErrorMessage = ""
	b.CompletedAt = nil
	return nil
}

func (r *memBatchRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*model.Batch, 0, len(r.s.batches))
	for _, b := range r.s.batches {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memBatchRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for id, b := range r.s.batches {
		if b.Status.Terminal() && b.CompletedAt != nil && b.CompletedAt.Before(cutoff) {
			delete(r.s.batches, id)
			n++
		}
	}
	return n, nil
}

type memLinkRepo struct{ s *memStore }

var _ repository.LinkRepository = (*memLinkRepo)(nil)

func (r *memLinkRepo) Create(ctx context.Context, tx repository.Tx, l *model.Link) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *l
	r.s.links[l.ID] = &cp
	return nil
}

func (r *memLinkRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Link, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.links[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memLinkRepo) ListByBatch(ctx context.Context, tx repository.Tx, batchID string) ([]*model.Link, error) {
	return r.list(batchID, "")
}

func (r *memLinkRepo) ListByBatchStatus(ctx context.Context, tx repository.Tx, batchID string, status model.LinkStatus) ([]*model.Link, error) {
	return r.list(batchID, status)
}

func (r *memLinkRepo) list(batchID string, status model.LinkStatus) ([]*model.Link, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Link
	for _, l := range r.s.links {
		if l.BatchID != batchID {
			continue
		}
		if status != "" && l.Status != status {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	// deterministic order for the dispatch loop
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LinkIndex < out[i].LinkIndex {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *memLinkRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.LinkStatus, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.links[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status = status
	if errMsg != "" {
		l.ErrorMessage = errMsg
	}
	now := time.Now()
	if status == model.LinkStatusProcessing && l.StartedAt == nil {
		l.StartedAt = &now
	}
	if status.Terminal() {
		l.CompletedAt = &now
	}
	return nil
}

func (r *memLinkRepo) SetDriveFolder(ctx context.Context, tx repository.Tx, id, folderURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l, ok := r.s.links[id]; ok {
		l.DriveFolderURL = folderURL
	}
	return nil
}

func (r *memLinkRepo) CountByStatus(ctx context.Context, tx repository.Tx, batchID string) (map[model.LinkStatus]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[model.LinkStatus]int)
	for _, l := range r.s.links {
		if l.BatchID == batchID {
			out[l.Status]++
		}
	}
	return out, nil
}

func (r *memLinkRepo) CancelPending(ctx context.Context, tx repository.Tx, batchID, reason string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for _, l := range r.s.links {
		if l.BatchID == batchID && l.Status == model.LinkStatusPending {
			l.Status = model.LinkStatusFailed
			l.ErrorMessage = reason
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

func (r *memLinkRepo) ResetForRetry(ctx context.Context, tx repository.Tx, batchID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for _, l := range r.s.links {
		if l.BatchID == batchID && l.Status == model.LinkStatusFailed {
			l.Status = model.LinkStatusPending
			l.ErrorMessage = ""
			l.StartedAt = nil
			l.CompletedAt = nil
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

type memVariationRepo struct{ s *memStore }

var _ repository.VariationRepository = (*memVariationRepo)(nil)

func (r *memVariationRepo) Create(ctx context.Context, tx repository.Tx, v *model.Variation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *v
	r.s.variations[v.ID] = &cp
	return nil
}

func (r *memVariationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Variation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.variations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *memVariationRepo) ListByLink(ctx context.Context, tx repository.Tx, linkID string, pass int) ([]*model.Variation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Variation
	for _, v := range r.s.variations {
		if v.LinkID == linkID && v.Pass == pass {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memVariationRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.VariationStatus, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.variations[id]
	if !ok {
		return domain.ErrNotFound
	}
	v.Status = status
	if errMsg != "" {
		v.ErrorMessage = errMsg
	}
	now := time.Now()
	if status == model.VariationStatusProcessing && v.StartedAt == nil {
		v.StartedAt = &now
	}
	if status.Terminal() {
		v.CompletedAt = &now
	}
	return nil
}

func (r *memVariationRepo) SetArtifact(ctx context.Context, tx repository.Tx, id, outputName, driveURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v, ok := r.s.variations[id]; ok {
		v.OutputName = outputName
		v.DriveURL = driveURL
	}
	return nil
}

func (r *memVariationRepo) IncrementRetries(ctx context.Context, tx repository.Tx, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v, ok := r.s.variations[id]; ok {
		v.Retries++
	}
	return nil
}

func (r *memVariationRepo) CountByStatus(ctx context.Context, tx repository.Tx, batchID string) (map[model.VariationStatus]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[model.VariationStatus]int)
	for _, v := range r.s.variations {
		l, ok := r.s.links[v.LinkID]
		if ok && l.BatchID == batchID {
			out[v.Status]++
		}
	}
	return out, nil
}

func (r *memVariationRepo) CancelPendingForLinks(ctx context.Context, tx repository.Tx, linkIDs []string, reason string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set := make(map[string]bool, len(linkIDs))
	for _, id := range linkIDs {
		set[id] = true
	}
	n := 0
	for _, v := range r.s.variations {
		if set[v.LinkID] && v.Status == model.VariationStatusPending {
			v.Status = model.VariationStatusFailed
			v.ErrorMessage = reason
			n++
		}
	}
	return n, nil
}

// ---- scripted adapters ----

type fakeSource struct {
	content *adapter.SourceContent
	err     error
}

func (f *fakeSource) Fetch(ctx context.Context, url string) (*adapter.SourceContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.content != nil {
		return f.content, nil
	}
	return &adapter.SourceContent{
		Images:  [][]byte{[]byte("ref")},
		Caption: "caption",
	}, nil
}

// fakeGenerator delegates to fn so each test scripts its own behavior.
type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, req adapter.GenerationRequest) (*adapter.Artifact, error)
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, req adapter.GenerationRequest) (*adapter.Artifact, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		return fn(call, req)
	}
	return &adapter.Artifact{
		Name: fmt.Sprintf("variation_%d.jpg", req.VariationNum),
		MIME: "image/jpeg",
		Data: []byte("img"),
	}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads []string
	err     error
}

func (f *fakeStorage) EnsureFolder(ctx context.Context, name, parentID string) (*adapter.FolderRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := name
	if parentID != "" {
		id = parentID + "/" + name
	}
	return &adapter.FolderRef{ID: id, URL: "https://folders/" + id}, nil
}

func (f *fakeStorage) Upload(ctx context.Context, folderID, name string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, folderID+"/"+name)
	return "https://files/" + folderID + "/" + name, nil
}

func (f *fakeStorage) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches []*model.Batch
}

func (f *fakeNotifier) NotifyBatchFinished(ctx context.Context, b *model.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return nil
}

// fastLimiter tracks the in-flight peak without imposing any spacing.
type fastLimiter struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	acquires int
}

func (l *fastLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	l.inFlight++
	l.acquires++
	if l.inFlight > l.peak {
		l.peak = l.inFlight
	}
	l.mu.Unlock()
	return nil
}

func (l *fastLimiter) Release() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
}
