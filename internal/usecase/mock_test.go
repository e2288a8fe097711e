//go:build !integration

package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/repository"
)

// passthroughTxm runs fn directly; the in-memory store has no transactions.
type passthroughTxm struct{}

func (passthroughTxm) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

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
	return 0, nil
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
	return nil
}

func (r *memLinkRepo) SetDriveFolder(ctx context.Context, tx repository.Tx, id, folderURL string) error {
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
	return nil
}

func (r *memVariationRepo) SetArtifact(ctx context.Context, tx repository.Tx, id, outputName, driveURL string) error {
	return nil
}

func (r *memVariationRepo) IncrementRetries(ctx context.Context, tx repository.Tx, id string) error {
	return nil
}

func (r *memVariationRepo) CountByStatus(ctx context.Context, tx repository.Tx, batchID string) (map[model.VariationStatus]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[model.VariationStatus]int)
	for _, v := range r.s.variations {
		if l, ok := r.s.links[v.LinkID]; ok && l.BatchID == batchID {
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
