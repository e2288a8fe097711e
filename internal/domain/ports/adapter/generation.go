package adapter

import "context"

// GenerationRequest carries everything one variation call needs: the scraped
// reference images, the product context and the ordinal that seeds prompt
// diversity between sibling variations.
type GenerationRequest struct {
	ReferenceImages    [][]byte
	ProductImage       []byte
	ProductDescription string
	Caption            string
	VariationNum       int
}

// Artifact is one generated output ready for upload.
type Artifact struct {
	Name string
	MIME string
	Data []byte
}

// GenerationAdapter is the black-box generation call. Implementations map
// provider failures onto domain errors: ErrRateLimited and ErrTimeout are
// retryable, ErrInvalidInput is terminal.
type GenerationAdapter interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (*Artifact, error)
}
