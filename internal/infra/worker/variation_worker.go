package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/adapter"
	"slideshow-batch/internal/domain/ports/repository"
	"slideshow-batch/internal/infra/logging"
	"slideshow-batch/internal/infra/metrics"
	"slideshow-batch/internal/infra/ratelimit"
	"slideshow-batch/internal/infra/retry"
)

const cancelReason = "batch cancelled"

// VariationWorker runs one complete generate+upload attempt cycle for a single
// variation. The rate-limit slot is held only for the generation call itself;
// the upload happens after release so slow storage never throttles generation
// throughput.
type VariationWorker struct {
	variations repository.VariationRepository
	limiter    ratelimit.Limiter
	generator  adapter.GenerationAdapter
	storage    adapter.StorageAdapter

	policy         retry.Policy
	callTimeout    time.Duration
	acquireTimeout time.Duration

	log *zerolog.Logger
}

func NewVariationWorker(
	variations repository.VariationRepository,
	limiter ratelimit.Limiter,
	generator adapter.GenerationAdapter,
	storage adapter.StorageAdapter,
	policy retry.Policy,
	callTimeout, acquireTimeout time.Duration,
	log *zerolog.Logger,
) *VariationWorker {
	if callTimeout <= 0 {
		callTimeout = 120 * time.Second
	}
	return &VariationWorker{
		variations:     variations,
		limiter:        limiter,
		generator:      generator,
		storage:        storage,
		policy:         policy,
		callTimeout:    callTimeout,
		acquireTimeout: acquireTimeout,
		log:            log,
	}
}

// Process drives v to a terminal state. The returned error reports the
// terminal failure for rollup purposes; the variation row itself is always
// stamped before returning.
func (w *VariationWorker) Process(ctx context.Context, link *model.Link, v *model.Variation, content *adapter.SourceContent, productImage []byte, folderID string, flag *CancelFlag) error {
	ctx = logging.WithVariationID(logging.WithLinkID(ctx, link.ID), v.ID)
	log := logging.With(ctx, w.log)

	// Queued work observes the flag before anything else: cancelled batches
	// fail their remaining variations without touching the limiter.
	if flag != nil && flag.Cancelled() {
		return w.finish(ctx, v, fmt.Errorf("%w: %s", domain.ErrCancelled, cancelReason))
	}

	if err := w.variations.UpdateStatus(ctx, nil, v.ID, model.VariationStatusProcessing, ""); err != nil {
		return err
	}

	req := adapter.GenerationRequest{
		ReferenceImages:    content.Images,
		ProductImage:       productImage,
		ProductDescription: link.ProductDescription,
		Caption:            content.Caption,
		VariationNum:       v.VariationNum,
	}

	err := w.policy.Execute(ctx, func(ctx context.Context) error {
		return w.attempt(ctx, v, req, folderID, flag)
	}, func(attempt int, attemptErr error) {
		if errors.Is(attemptErr, domain.ErrCancelled) {
			return
		}
		if uerr := w.variations.IncrementRetries(ctx, nil, v.ID); uerr != nil {
			log.Warn().Err(uerr).Msg("could not bump retry counter")
		}
		metrics.IncVariationRetry()
		log.Warn().Int("attempt", attempt+1).Err(attemptErr).Msg("variation attempt failed")
	})

	return w.finish(ctx, v, err)
}

func (w *VariationWorker) attempt(ctx context.Context, v *model.Variation, req adapter.GenerationRequest, folderID string, flag *CancelFlag) error {
	if flag != nil && flag.Cancelled() {
		return fmt.Errorf("%w: %s", domain.ErrCancelled, cancelReason)
	}

	acquireCtx := ctx
	if w.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, w.acquireTimeout)
		defer cancel()
	}
	if err := w.limiter.Acquire(acquireCtx); err != nil {
		return err
	}

	// A cancel may have landed while we waited for the slot.
	if flag != nil && flag.Cancelled() {
		w.limiter.Release()
		return fmt.Errorf("%w: %s", domain.ErrCancelled, cancelReason)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	art, err := w.generator.Generate(callCtx, req)
	cancel()
	w.limiter.Release()
	if err != nil {
		return err
	}

	name := artifactName(v, art.MIME)
	uploadCtx, cancel := context.WithTimeout(ctx, w.callTimeout)
	url, err := w.storage.Upload(uploadCtx, folderID, name, art.Data)
	cancel()
	if err != nil {
		return err
	}

	return w.variations.SetArtifact(ctx, nil, v.ID, name, url)
}

func (w *VariationWorker) finish(ctx context.Context, v *model.Variation, err error) error {
	log := logging.With(ctx, w.log)
	if err == nil {
		if uerr := w.variations.UpdateStatus(ctx, nil, v.ID, model.VariationStatusCompleted, ""); uerr != nil {
			return uerr
		}
		metrics.IncVariation(string(model.VariationStatusCompleted))
		log.Info().Int("variation", v.VariationNum).Msg("variation completed")
		return nil
	}

	if uerr := w.variations.UpdateStatus(ctx, nil, v.ID, model.VariationStatusFailed, err.Error()); uerr != nil {
		log.Error().Err(uerr).Msg("could not record variation failure")
	}
	metrics.IncVariation(string(model.VariationStatusFailed))
	log.Warn().Int("variation", v.VariationNum).Err(err).Msg("variation failed")
	return err
}

func artifactName(v *model.Variation, mime string) string {
	ext := "jpg"
	if mime == "image/png" {
		ext = "png"
	}
	if v.Pass > 1 {
		return fmt.Sprintf("variation_%02d_pass%d.%s", v.VariationNum, v.Pass, ext)
	}
	return fmt.Sprintf("variation_%02d.%s", v.VariationNum, ext)
}
