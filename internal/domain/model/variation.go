package model

import "time"

type VariationStatus string

const (
	VariationStatusPending    VariationStatus = "pending"
	VariationStatusProcessing VariationStatus = "processing"
	VariationStatusCompleted  VariationStatus = "completed"
	VariationStatusFailed     VariationStatus = "failed"
)

func (s VariationStatus) Terminal() bool {
	return s == VariationStatusCompleted || s == VariationStatusFailed
}

func (s VariationStatus) CanTransition(to VariationStatus) bool {
	switch s {
	case VariationStatusPending:
		return to == VariationStatusProcessing || to == VariationStatusFailed
	case VariationStatusProcessing:
		return to.Terminal()
	default:
		return false
	}
}

// Variation is one complete generation+upload attempt for a link. Retry-failed
// passes create fresh rows (tagged with the pass number) rather than resuming
// old ones.
type Variation struct {
	ID           string
	LinkID       string
	VariationNum int
	Pass         int

	Status  VariationStatus
	Retries int

	OutputName   string
	DriveURL     string
	ErrorMessage string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func NewVariation(id, linkID string, num, pass int) *Variation {
	return &Variation{
		ID:           id,
		LinkID:       linkID,
		VariationNum: num,
		Pass:         pass,
		Status:       VariationStatusPending,
		CreatedAt:    time.Now(),
	}
}
