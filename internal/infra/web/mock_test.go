//go:build !integration

package web

import (
	"context"

	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/usecase"
)

type fakeBatchService struct {
	submitResult *usecase.SubmitResult
	submitErr    error

	validFn func(text string) ([]string, []usecase.InvalidLink)

	cancelErr error
	cancelled []string

	retryPassID string
	retryErr    error

	recent  []*model.Batch
	listErr error

	links    []*model.Link
	linksErr error
}

var _ batchService = (*fakeBatchService)(nil)

func (f *fakeBatchService) Submit(_ context.Context, _ usecase.SubmitInput) (*usecase.SubmitResult, error) {
	return f.submitResult, f.submitErr
}

func (f *fakeBatchService) Validate(text string) ([]string, []usecase.InvalidLink) {
	if f.validFn != nil {
		return f.validFn(text)
	}
	return nil, nil
}

func (f *fakeBatchService) Cancel(_ context.Context, batchID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, batchID)
	return nil
}

func (f *fakeBatchService) RetryFailed(_ context.Context, _ string) (string, error) {
	return f.retryPassID, f.retryErr
}

func (f *fakeBatchService) ListRecent(_ context.Context, _ int) ([]*model.Batch, error) {
	return f.recent, f.listErr
}

func (f *fakeBatchService) Links(_ context.Context, _ string) ([]*model.Link, error) {
	return f.links, f.linksErr
}

type fakeProgressService struct {
	snap *usecase.Snapshot
	err  error
}

var _ progressService = (*fakeProgressService)(nil)

func (f *fakeProgressService) Snapshot(_ context.Context, _ string) (*usecase.Snapshot, error) {
	return f.snap, f.err
}
