package adapter

import "context"

// SourceContent is the reference material scraped from one content link:
// the slideshow images plus whatever caption metadata the source exposes.
type SourceContent struct {
	Images  [][]byte
	Caption string
	Author  string
}

// ContentSourceAdapter fetches reference assets for a link. Implementations
// translate their transport failures into domain errors: ErrSourceNotFound,
// ErrSourcePrivate, ErrRateLimited, ErrTimeout.
type ContentSourceAdapter interface {
	Fetch(ctx context.Context, url string) (*SourceContent, error)
}
