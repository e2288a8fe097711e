package model

import "time"

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusCancelled  BatchStatus = "cancelled"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transition may occur.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusCancelled || s == BatchStatusFailed
}

// CanTransition enforces the forward-only lifecycle
// pending → processing → {completed, cancelled, failed}.
// The only sanctioned exception, a retry pass reopening a terminal batch,
// goes through BatchRepository.BeginPass, not through a status update.
func (s BatchStatus) CanTransition(to BatchStatus) bool {
	switch s {
	case BatchStatusPending:
		return to == BatchStatusProcessing || to == BatchStatusCancelled || to == BatchStatusFailed
	case BatchStatusProcessing:
		return to.Terminal()
	default:
		return false
	}
}

// Batch is one user submission of up to MaxLinks content links, processed as a
// three-level job hierarchy (batch → link → variation).
type Batch struct {
	ID              string
	Status          BatchStatus
	TotalLinks      int
	PhotoVariations int
	TextVariations  int

	// Rollup counters, maintained by atomic increments as links finish.
	CompletedLinks int
	FailedLinks    int

	// Pass counts retry-failed re-submissions; the first run is pass 1.
	Pass       int
	LastPassID string

	FolderName     string
	DriveFolderURL string
	ErrorMessage   string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// VariationsPerLink is the fan-out each link produces.
func (b *Batch) VariationsPerLink() int {
	return b.PhotoVariations * b.TextVariations
}

func NewBatch(id string, totalLinks, photoVariations, textVariations int) *Batch {
	return &Batch{
		ID:              id,
		Status:          BatchStatusPending,
		TotalLinks:      totalLinks,
		PhotoVariations: photoVariations,
		TextVariations:  textVariations,
		Pass:            1,
		FolderName:      "Batch_" + shortID(id),
		CreatedAt:       time.Now(),
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
