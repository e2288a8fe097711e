package model

import "time"

type LinkStatus string

const (
	LinkStatusPending    LinkStatus = "pending"
	LinkStatusProcessing LinkStatus = "processing"
	LinkStatusCompleted  LinkStatus = "completed"
	LinkStatusFailed     LinkStatus = "failed"
)

func (s LinkStatus) Terminal() bool {
	return s == LinkStatusCompleted || s == LinkStatusFailed
}

func (s LinkStatus) CanTransition(to LinkStatus) bool {
	switch s {
	case LinkStatusPending:
		return to == LinkStatusProcessing || to == LinkStatusFailed
	case LinkStatusProcessing:
		return to.Terminal()
	default:
		return false
	}
}

// Link is one unit of input work inside a batch: a source URL plus the
// user-supplied product asset to blend into every generated variation.
type Link struct {
	ID        string
	BatchID   string
	LinkIndex int
	LinkURL   string

	ProductPhotoPath   string
	ProductDescription string

	Status         LinkStatus
	ErrorMessage   string
	DriveFolderURL string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

func NewLink(id, batchID string, index int, url, photoPath, description string) *Link {
	return &Link{
		ID:                 id,
		BatchID:            batchID,
		LinkIndex:          index,
		LinkURL:            url,
		ProductPhotoPath:   photoPath,
		ProductDescription: description,
		Status:             LinkStatusPending,
		CreatedAt:          time.Now(),
	}
}
