package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/adapter"
	"slideshow-batch/internal/domain/ports/repository"
	"slideshow-batch/internal/infra/logging"
	"slideshow-batch/internal/infra/metrics"
)

// BatchCoordinator owns one batch run: it fans links out under a bounded
// parallelism limit, rolls terminal links up into the batch counters and
// settles the batch's terminal status. Link fan-out is independent of the
// generation rate limiter; the limiter is always the binding constraint.
type BatchCoordinator struct {
	batches    repository.BatchRepository
	links      repository.LinkRepository
	variations repository.VariationRepository
	storage    adapter.StorageAdapter
	notifier   adapter.Notifier
	linkCoord  *LinkCoordinator
	registry   *Registry

	rootFolderID    string
	linkConcurrency int

	log *zerolog.Logger
}

func NewBatchCoordinator(
	batches repository.BatchRepository,
	links repository.LinkRepository,
	variations repository.VariationRepository,
	storage adapter.StorageAdapter,
	notifier adapter.Notifier,
	linkCoord *LinkCoordinator,
	registry *Registry,
	rootFolderID string,
	linkConcurrency int,
	log *zerolog.Logger,
) *BatchCoordinator {
	if linkConcurrency <= 0 {
		linkConcurrency = 5
	}
	return &BatchCoordinator{
		batches:         batches,
		links:           links,
		variations:      variations,
		storage:         storage,
		notifier:        notifier,
		linkCoord:       linkCoord,
		registry:        registry,
		rootFolderID:    rootFolderID,
		linkConcurrency: linkConcurrency,
		log:             log,
	}
}

// Registry exposes the cancel-flag registry so the API layer can flip flags.
func (c *BatchCoordinator) Registry() *Registry { return c.registry }

// Run coordinates one pass over the batch's pending links. It is dispatched on
// the worker pool; errors are for the pool's log, the batch row itself always
// ends terminal.
func (c *BatchCoordinator) Run(ctx context.Context, batchID string) error {
	ctx = logging.WithBatchID(ctx, batchID)
	log := logging.With(ctx, c.log)

	flag, err := c.registry.Register(batchID)
	if err != nil {
		// Lost the capacity race between submit-time check and dispatch. A
		// duplicate registration means another coordinator owns the rows, so
		// only the capacity case settles the batch.
		if errors.Is(err, domain.ErrTooManyBatches) {
			return c.abort(ctx, batchID, "concurrent batch limit reached")
		}
		return fmt.Errorf("register batch %s: %w", batchID, err)
	}
	defer c.registry.Unregister(batchID)

	batch, err := c.batches.FindByID(ctx, nil, batchID)
	if err != nil {
		return err
	}
	if err := c.batches.UpdateStatus(ctx, nil, batchID, model.BatchStatusProcessing, ""); err != nil {
		return err
	}

	folder, err := c.storage.EnsureFolder(ctx, batch.FolderName, c.rootFolderID)
	if err != nil {
		return c.abort(ctx, batchID, "destination folder: "+err.Error())
	}
	if err := c.batches.SetDriveFolder(ctx, nil, batchID, folder.URL); err != nil {
		log.Warn().Err(err).Msg("could not record batch folder url")
	}

	pending, err := c.links.ListByBatchStatus(ctx, nil, batchID, model.LinkStatusPending)
	if err != nil {
		return c.abort(ctx, batchID, err.Error())
	}
	log.Info().Int("links", len(pending)).Int("pass", batch.Pass).Msg("batch processing started")

	var g errgroup.Group
	g.SetLimit(c.linkConcurrency)
	for _, link := range pending {
		if flag.Cancelled() {
			break
		}
		g.Go(func() error {
			ok, lerr := c.linkCoord.Run(ctx, batch, link, folder, flag)
			c.rollup(ctx, batchID, ok)
			return lerr
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("link coordination reported errors")
	}

	return c.settle(ctx, batch, flag)
}

// rollup increments exactly one batch counter per terminal link. The child's
// status write happens inside the link coordinator before this runs, so the
// aggregate can never be observed ahead of the row it counts.
func (c *BatchCoordinator) rollup(ctx context.Context, batchID string, completed bool) {
	field := repository.RollupFailedLinks
	status := model.LinkStatusFailed
	if completed {
		field = repository.RollupCompletedLinks
		status = model.LinkStatusCompleted
	}
	if err := c.batches.IncrementRollup(ctx, nil, batchID, field, 1); err != nil && c.log != nil {
		c.log.Error().Str("batch_id", batchID).Err(err).Msg("rollup increment failed")
	}
	metrics.IncLinkFinished(string(status))
}

func (c *BatchCoordinator) settle(ctx context.Context, batch *model.Batch, flag *CancelFlag) error {
	log := logging.With(ctx, c.log)

	if flag.Cancelled() {
		// Links never dispatched go straight to failed with the cancel reason,
		// as do their variations; completed work is preserved.
		ids, err := c.links.CancelPending(ctx, nil, batch.ID, cancelReason)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			if _, err := c.variations.CancelPendingForLinks(ctx, nil, ids, cancelReason); err != nil {
				log.Warn().Err(err).Msg("could not sweep cancelled variations")
			}
			if err := c.batches.IncrementRollup(ctx, nil, batch.ID, repository.RollupFailedLinks, len(ids)); err != nil {
				log.Error().Err(err).Msg("rollup increment failed")
			}
		}
		return c.finish(ctx, batch, model.BatchStatusCancelled, "")
	}

	counts, err := c.links.CountByStatus(ctx, nil, batch.ID)
	if err != nil {
		return err
	}
	if failed := counts[model.LinkStatusFailed]; failed > 0 {
		msg := fmt.Sprintf("%d of %d links failed", failed, batch.TotalLinks)
		return c.finish(ctx, batch, model.BatchStatusFailed, msg)
	}
	return c.finish(ctx, batch, model.BatchStatusCompleted, "")
}

func (c *BatchCoordinator) finish(ctx context.Context, batch *model.Batch, status model.BatchStatus, errMsg string) error {
	log := logging.With(ctx, c.log)

	if err := c.batches.UpdateStatus(ctx, nil, batch.ID, status, errMsg); err != nil {
		return err
	}
	metrics.IncBatchFinished(string(status))
	log.Info().Str("status", string(status)).Msg("batch finished")

	final, err := c.batches.FindByID(ctx, nil, batch.ID)
	if err != nil {
		final = batch
		final.Status = status
	}
	if nerr := c.notifier.NotifyBatchFinished(ctx, final); nerr != nil {
		log.Warn().Err(nerr).Msg("operator notification failed")
	}
	return nil
}

// abort fails everything that has not run yet and stamps the batch failed.
// Used when batch-level preconditions (like the destination folder) fail.
func (c *BatchCoordinator) abort(ctx context.Context, batchID, msg string) error {
	ids, err := c.links.CancelPending(ctx, nil, batchID, msg)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		if _, err := c.variations.CancelPendingForLinks(ctx, nil, ids, msg); err != nil && c.log != nil {
			c.log.Warn().Err(err).Msg("could not sweep variations on abort")
		}
		if err := c.batches.IncrementRollup(ctx, nil, batchID, repository.RollupFailedLinks, len(ids)); err != nil && c.log != nil {
			c.log.Error().Err(err).Msg("rollup increment failed")
		}
	}
	batch, ferr := c.batches.FindByID(ctx, nil, batchID)
	if ferr != nil {
		return ferr
	}
	return c.finish(ctx, batch, model.BatchStatusFailed, msg)
}
