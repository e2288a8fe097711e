//go:build !integration

package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/adapter"
	"slideshow-batch/internal/infra/retry"
)

func workerFixture(gen *fakeGenerator) (*VariationWorker, *memStore, *fastLimiter) {
	store := newMemStore()
	limiter := &fastLimiter{}
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	w := NewVariationWorker(&memVariationRepo{s: store}, limiter, gen, &fakeStorage{}, policy, time.Second, 0, nil)
	return w, store, limiter
}

func seedVariation(store *memStore) (*model.Link, *model.Variation) {
	l := model.NewLink("l1", "b1", 0, "https://www.tiktok.com/@u/photo/0", "", "product")
	v := model.NewVariation("v1", l.ID, 1, 1)
	store.addLink(l)
	store.addVariation(v)
	return l, v
}

func refContent() *adapter.SourceContent {
	return &adapter.SourceContent{Images: [][]byte{[]byte("ref")}, Caption: "c"}
}

func TestVariationWorker_CancelledBeforeDispatchSkipsLimiter(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	w, store, limiter := workerFixture(gen)
	l, v := seedVariation(store)

	flag := NewCancelFlag()
	flag.Cancel()

	err := w.Process(context.Background(), l, v, refContent(), nil, "folder", flag)
	if !errors.Is(err, domain.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if limiter.acquires != 0 {
		t.Fatalf("cancelled work must not take a rate-limit slot")
	}
	if gen.callCount() != 0 {
		t.Fatalf("cancelled work must not call the generator")
	}

	got := store.variations[v.ID]
	if got.Status != model.VariationStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "cancelled") {
		t.Fatalf("error message = %q, want cancel reason", got.ErrorMessage)
	}
	if got.Retries != 0 {
		t.Fatalf("cancellation must not count as a retry, got %d", got.Retries)
	}
}

func TestVariationWorker_RetryCounterPerFailedAttempt(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	gen.fn = func(call int, req adapter.GenerationRequest) (*adapter.Artifact, error) {
		if call == 1 {
			return nil, domain.ErrTimeout
		}
		return &adapter.Artifact{Name: "v.jpg", MIME: "image/jpeg", Data: []byte("x")}, nil
	}
	w, store, _ := workerFixture(gen)
	l, v := seedVariation(store)

	if err := w.Process(context.Background(), l, v, refContent(), nil, "folder", nil); err != nil {
		t.Fatalf("process: %v", err)
	}

	got := store.variations[v.ID]
	if got.Status != model.VariationStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Retries != 1 {
		t.Fatalf("retries = %d, want 1", got.Retries)
	}
}

func TestVariationWorker_ExhaustionRecordsFailure(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	gen.fn = func(call int, req adapter.GenerationRequest) (*adapter.Artifact, error) {
		return nil, domain.ErrRateLimited
	}
	w, store, limiter := workerFixture(gen)
	l, v := seedVariation(store)

	err := w.Process(context.Background(), l, v, refContent(), nil, "folder", nil)
	if !errors.Is(err, domain.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}

	got := store.variations[v.ID]
	if got.Status != model.VariationStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Retries != 3 {
		t.Fatalf("retries = %d, want 3", got.Retries)
	}
	if limiter.inFlight != 0 {
		t.Fatalf("limiter slot leaked: %d in flight", limiter.inFlight)
	}
}

func TestVariationWorker_SlotReleasedOnGenerationFailure(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	gen.fn = func(call int, req adapter.GenerationRequest) (*adapter.Artifact, error) {
		return nil, domain.ErrInvalidInput
	}
	w, store, limiter := workerFixture(gen)
	l, v := seedVariation(store)

	if err := w.Process(context.Background(), l, v, refContent(), nil, "folder", nil); err == nil {
		t.Fatalf("expected terminal failure")
	}
	if limiter.acquires != 1 {
		t.Fatalf("terminal failure must not be retried, acquires = %d", limiter.acquires)
	}
	if limiter.inFlight != 0 {
		t.Fatalf("limiter slot leaked")
	}
}
