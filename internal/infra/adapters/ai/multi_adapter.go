package ai

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"slideshow-batch/internal/domain/ports/adapter"
)

var _ adapter.GenerationAdapter = (*MultiAdapter)(nil)

// MultiAdapter chains providers: the first one that yields an artifact wins.
// Context cancellation stops the chain immediately; everything else falls
// through to the next provider, keeping the last error for the caller.
type MultiAdapter struct {
	providers []adapter.GenerationAdapter
	log       *zerolog.Logger
}

func NewMultiAdapter(log *zerolog.Logger, providers ...adapter.GenerationAdapter) *MultiAdapter {
	return &MultiAdapter{providers: providers, log: log}
}

func (m *MultiAdapter) Name() string {
	if len(m.providers) == 1 {
		return m.providers[0].Name()
	}
	return "multi"
}

func (m *MultiAdapter) Generate(ctx context.Context, req adapter.GenerationRequest) (*adapter.Artifact, error) {
	var lastErr error
	for _, p := range m.providers {
		art, err := p.Generate(ctx, req)
		if err == nil {
			return art, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return nil, err
		}
		lastErr = err
		if m.log != nil {
			m.log.Warn().Str("provider", p.Name()).Err(err).Msg("generation provider failed, trying next")
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no generation providers configured")
	}
	return nil, lastErr
}
