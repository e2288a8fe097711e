package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/model"
	"slideshow-batch/internal/domain/ports/repository"
	"slideshow-batch/internal/infra/logging"
	redisinfra "slideshow-batch/internal/infra/redis"
	"slideshow-batch/internal/infra/worker"
)

const (
	minVariations = 1
	maxVariations = 5

	retryLockTTL = 30 * time.Second
)

var (
	linkSplit = regexp.MustCompile(`[\n\r,\t]+`)

	tiktokPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^https?://(www\.)?tiktok\.com/@[\w.-]+/video/\d+`),
		regexp.MustCompile(`^https?://(www\.)?tiktok\.com/@[\w.-]+/photo/\d+`),
		regexp.MustCompile(`^https?://vm\.tiktok\.com/\w+`),
		regexp.MustCompile(`^https?://(www\.)?tiktok\.com/t/\w+`),
	}
)

// SubmitInput is one batch submission. Links come as free text (newline,
// comma or tab separated). Per-link assets fall back to the apply-to-all
// values when the per-index slice is short or empty.
type SubmitInput struct {
	LinksText string

	PhotoVariations int
	TextVariations  int

	PhotoPaths   []string
	Descriptions []string

	DefaultPhotoPath   string
	DefaultDescription string
}

type InvalidLink struct {
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Reason string `json:"error"`
}

type SubmitResult struct {
	BatchID    string        `json:"batch_id"`
	TotalLinks int           `json:"total_links"`
	Variations int           `json:"variations_per_link"`
	Invalid    []InvalidLink `json:"invalid_links,omitempty"`
}

// BatchUC owns the batch lifecycle operations the API exposes: submit,
// cancel, retry-failed, validate, list.
type BatchUC struct {
	txm        repository.TransactionManager
	batches    repository.BatchRepository
	links      repository.LinkRepository
	variations repository.VariationRepository

	pool     *worker.Pool
	coord    *worker.BatchCoordinator
	registry *worker.Registry
	locker   redisinfra.Locker // nil when Redis is not configured

	maxLinks int
	log      *zerolog.Logger
}

func NewBatchUC(
	txm repository.TransactionManager,
	batches repository.BatchRepository,
	links repository.LinkRepository,
	variations repository.VariationRepository,
	pool *worker.Pool,
	coord *worker.BatchCoordinator,
	registry *worker.Registry,
	locker redisinfra.Locker,
	maxLinks int,
	log *zerolog.Logger,
) *BatchUC {
	if maxLinks <= 0 {
		maxLinks = 100
	}
	return &BatchUC{
		txm:        txm,
		batches:    batches,
		links:      links,
		variations: variations,
		pool:       pool,
		coord:      coord,
		registry:   registry,
		locker:     locker,
		maxLinks:   maxLinks,
		log:        log,
	}
}

// ParseLinks splits free-text input into candidate URLs.
func ParseLinks(text string) []string {
	parts := linkSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidateURL reports whether url is an accepted content link.
func ValidateURL(url string) error {
	for _, p := range tiktokPatterns {
		if p.MatchString(url) {
			return nil
		}
	}
	return fmt.Errorf("%w: not a recognized content url", domain.ErrInvalidArgument)
}

// Validate checks candidate links without creating anything.
func (uc *BatchUC) Validate(text string) (valid []string, invalid []InvalidLink) {
	for i, link := range ParseLinks(text) {
		if err := ValidateURL(link); err != nil {
			invalid = append(invalid, InvalidLink{Index: i, URL: link, Reason: "Invalid TikTok URL format"})
			continue
		}
		valid = append(valid, link)
	}
	return valid, invalid
}

func clampVariations(n int) int {
	if n < minVariations {
		return minVariations
	}
	if n > maxVariations {
		return maxVariations
	}
	return n
}

// Submit validates the input, creates the whole pending hierarchy in one
// transaction and hands the batch to a coordinator. Input errors create no
// entities.
func (uc *BatchUC) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	candidates := ParseLinks(in.LinksText)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no links provided", domain.ErrInvalidArgument)
	}
	if len(candidates) > uc.maxLinks {
		return nil, fmt.Errorf("%w: too many links, maximum is %d, got %d",
			domain.ErrInvalidArgument, uc.maxLinks, len(candidates))
	}

	var (
		validURLs []string
		invalid   []InvalidLink
	)
	for i, link := range candidates {
		if err := ValidateURL(link); err != nil {
			invalid = append(invalid, InvalidLink{Index: i, URL: link, Reason: "Invalid TikTok URL format"})
			continue
		}
		validURLs = append(validURLs, link)
	}
	if len(validURLs) == 0 {
		return &SubmitResult{Invalid: invalid}, fmt.Errorf("%w: no valid links found", domain.ErrInvalidArgument)
	}

	if uc.registry.Running() >= uc.registryCapacity() {
		return nil, domain.ErrTooManyBatches
	}

	photoVars := clampVariations(in.PhotoVariations)
	textVars := clampVariations(in.TextVariations)

	batchID := ulid.Make().String()
	batch := model.NewBatch(batchID, len(validURLs), photoVars, textVars)

	err := uc.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.batches.Create(ctx, tx, batch); err != nil {
			return err
		}
		for i, url := range validURLs {
			photo := in.DefaultPhotoPath
			if i < len(in.PhotoPaths) && in.PhotoPaths[i] != "" {
				photo = in.PhotoPaths[i]
			}
			desc := in.DefaultDescription
			if i < len(in.Descriptions) && in.Descriptions[i] != "" {
				desc = in.Descriptions[i]
			}
			link := model.NewLink(uuid.NewString(), batchID, i, url, photo, desc)
			if err := uc.links.Create(ctx, tx, link); err != nil {
				return err
			}
			for n := 1; n <= batch.VariationsPerLink(); n++ {
				v := model.NewVariation(uuid.NewString(), link.ID, n, 1)
				if err := uc.variations.Create(ctx, tx, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.dispatch(ctx, batchID)

	return &SubmitResult{
		BatchID:    batchID,
		TotalLinks: len(validURLs),
		Variations: batch.VariationsPerLink(),
		Invalid:    invalid,
	}, nil
}

func (uc *BatchUC) registryCapacity() int {
	// Registry enforces the real ceiling at Run time; this submit-time check
	// just fails fast before entities are created.
	return uc.registry.Capacity()
}

func (uc *BatchUC) dispatch(ctx context.Context, batchID string) {
	log := logging.With(logging.WithBatchID(ctx, batchID), uc.log)
	err := uc.pool.Submit(func(ctx context.Context) error {
		return uc.coord.Run(ctx, batchID)
	})
	if err != nil {
		log.Error().Err(err).Msg("could not dispatch batch coordinator")
	}
}

// Cancel flips the running batch's flag, or settles a batch that is not
// coordinated by this process (still pending, or orphaned by a restart)
// directly in the store.
func (uc *BatchUC) Cancel(ctx context.Context, batchID string) error {
	batch, err := uc.batches.FindByID(ctx, nil, batchID)
	if err != nil {
		return err
	}
	if batch.Status.Terminal() {
		return domain.ErrBatchTerminal
	}

	if uc.registry.Cancel(batchID) {
		// The coordinator observes the flag and settles the rows itself.
		return nil
	}

	return uc.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ids, err := uc.links.CancelPending(ctx, tx, batchID, "batch cancelled")
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			if _, err := uc.variations.CancelPendingForLinks(ctx, tx, ids, "batch cancelled"); err != nil {
				return err
			}
			if err := uc.batches.IncrementRollup(ctx, tx, batchID, repository.RollupFailedLinks, len(ids)); err != nil {
				return err
			}
		}
		return uc.batches.UpdateStatus(ctx, tx, batchID, model.BatchStatusCancelled, "")
	})
}

// RetryFailed opens a fresh pass over the batch's failed links: the links go
// back to pending, brand-new variation rows are created for the new pass
// (failed ones are never resumed), and the failed-links rollup is rewound by
// the reset count so the sum invariant holds across passes.
func (uc *BatchUC) RetryFailed(ctx context.Context, batchID string) (string, error) {
	if uc.locker != nil {
		token, err := uc.locker.TryLock(ctx, "batch:retry:"+batchID, retryLockTTL)
		if err != nil {
			return "", err
		}
		defer func() { _ = uc.locker.Unlock(ctx, "batch:retry:"+batchID, token) }()
	}

	batch, err := uc.batches.FindByID(ctx, nil, batchID)
	if err != nil {
		return "", err
	}
	if !batch.Status.Terminal() {
		return "", domain.ErrBatchNotTerminal
	}

	counts, err := uc.links.CountByStatus(ctx, nil, batchID)
	if err != nil {
		return "", err
	}
	if counts[model.LinkStatusFailed] == 0 {
		return "", domain.ErrNoFailedLinks
	}

	if uc.registry.Running() >= uc.registryCapacity() {
		return "", domain.ErrTooManyBatches
	}

	pass := batch.Pass + 1
	passID := ulid.Make().String()

	err = uc.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.batches.BeginPass(ctx, tx, batchID, passID, pass); err != nil {
			return err
		}
		ids, err := uc.links.ResetForRetry(ctx, tx, batchID)
		if err != nil {
			return err
		}
		for _, linkID := range ids {
			for n := 1; n <= batch.VariationsPerLink(); n++ {
				v := model.NewVariation(uuid.NewString(), linkID, n, pass)
				if err := uc.variations.Create(ctx, tx, v); err != nil {
					return err
				}
			}
		}
		return uc.batches.IncrementRollup(ctx, tx, batchID, repository.RollupFailedLinks, -len(ids))
	})
	if err != nil {
		return "", err
	}

	uc.dispatch(ctx, batchID)
	return passID, nil
}

func (uc *BatchUC) ListRecent(ctx context.Context, limit int) ([]*model.Batch, error) {
	return uc.batches.ListRecent(ctx, nil, limit)
}

func (uc *BatchUC) Links(ctx context.Context, batchID string) ([]*model.Link, error) {
	if _, err := uc.batches.FindByID(ctx, nil, batchID); err != nil {
		return nil, err
	}
	return uc.links.ListByBatch(ctx, nil, batchID)
}
