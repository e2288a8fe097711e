package worker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/adapter"
	"slideshow-batch/internal/domain/ports/repository"
	"slideshow-batch/internal/infra/logging"
	"slideshow-batch/internal/infra/retry"
)

// LinkCoordinator drives one link to a terminal state: scrape the source,
// ensure the destination folder, then run every variation of the current pass.
// A variation failure never aborts its siblings; the link fails only once all
// of them are terminal.
type LinkCoordinator struct {
	links      repository.LinkRepository
	variations repository.VariationRepository
	source     adapter.ContentSourceAdapter
	storage    adapter.StorageAdapter
	worker     *VariationWorker
	policy     retry.Policy
	log        *zerolog.Logger
}

func NewLinkCoordinator(
	links repository.LinkRepository,
	variations repository.VariationRepository,
	source adapter.ContentSourceAdapter,
	storage adapter.StorageAdapter,
	worker *VariationWorker,
	policy retry.Policy,
	log *zerolog.Logger,
) *LinkCoordinator {
	return &LinkCoordinator{
		links:      links,
		variations: variations,
		source:     source,
		storage:    storage,
		worker:     worker,
		policy:     policy,
		log:        log,
	}
}

// Run returns whether the link completed. The link row and all its variation
// rows are terminal when Run returns, whatever the outcome.
func (c *LinkCoordinator) Run(ctx context.Context, batch *model.Batch, link *model.Link, batchFolder *adapter.FolderRef, flag *CancelFlag) (bool, error) {
	ctx = logging.WithLinkID(ctx, link.ID)
	log := logging.With(ctx, c.log)

	if flag != nil && flag.Cancelled() {
		return false, c.fail(ctx, link, cancelReason)
	}

	if err := c.links.UpdateStatus(ctx, nil, link.ID, model.LinkStatusProcessing, ""); err != nil {
		return false, err
	}

	// Scrape failures are retried under the same policy as generation calls.
	var content *adapter.SourceContent
	err := c.policy.Execute(ctx, func(ctx context.Context) error {
		fetched, ferr := c.source.Fetch(ctx, link.LinkURL)
		if ferr != nil {
			return ferr
		}
		content = fetched
		return nil
	}, nil)
	if err != nil {
		log.Warn().Str("url", link.LinkURL).Err(err).Msg("source fetch failed")
		return false, c.fail(ctx, link, err.Error())
	}

	folder, err := c.storage.EnsureFolder(ctx, fmt.Sprintf("link_%02d", link.LinkIndex+1), batchFolder.ID)
	if err != nil {
		return false, c.fail(ctx, link, "destination folder: "+err.Error())
	}
	if err := c.links.SetDriveFolder(ctx, nil, link.ID, folder.URL); err != nil {
		log.Warn().Err(err).Msg("could not record link folder url")
	}

	// The product photo is optional; generation degrades to prompt-only.
	var productImage []byte
	if link.ProductPhotoPath != "" {
		if b, rerr := os.ReadFile(link.ProductPhotoPath); rerr == nil {
			productImage = b
		} else {
			log.Warn().Str("path", link.ProductPhotoPath).Err(rerr).Msg("product photo unreadable")
		}
	}

	vars, err := c.variations.ListByLink(ctx, nil, link.ID, batch.Pass)
	if err != nil {
		return false, c.fail(ctx, link, err.Error())
	}

	var (
		mu       sync.Mutex
		failed   int
		firstErr string
		wg       sync.WaitGroup
	)
	for _, v := range vars {
		if v.Status.Terminal() {
			if v.Status == model.VariationStatusFailed {
				failed++
			}
			continue
		}
		wg.Add(1)
		go func(v *model.Variation) {
			defer wg.Done()
			if perr := c.worker.Process(ctx, link, v, content, productImage, folder.ID, flag); perr != nil {
				mu.Lock()
				failed++
				if firstErr == "" {
					firstErr = perr.Error()
				}
				mu.Unlock()
			}
		}(v)
	}
	wg.Wait()

	if failed > 0 {
		msg := firstErr
		if msg == "" {
			msg = fmt.Sprintf("%d variations failed", failed)
		}
		return false, c.fail(ctx, link, msg)
	}

	if err := c.links.UpdateStatus(ctx, nil, link.ID, model.LinkStatusCompleted, ""); err != nil {
		return false, err
	}
	log.Info().Int("variations", len(vars)).Msg("link completed")
	return true, nil
}

// fail stamps the link terminal and sweeps any still-pending variations so no
// row is left non-terminal.
func (c *LinkCoordinator) fail(ctx context.Context, link *model.Link, msg string) error {
	if _, err := c.variations.CancelPendingForLinks(ctx, nil, []string{link.ID}, msg); err != nil {
		if c.log != nil {
			c.log.Warn().Str("link_id", link.ID).Err(err).Msg("could not sweep pending variations")
		}
	}
	if err := c.links.UpdateStatus(ctx, nil, link.ID, model.LinkStatusFailed, msg); err != nil {
		return err
	}
	return nil
}
