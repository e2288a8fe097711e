package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/ports/adapter"
	"slideshow-batch/internal/infra/metrics"
)

var _ adapter.GenerationAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client  *genai.Client
	model   string
	prompts *PromptBuilder
}

func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, model string, prompts *PromptBuilder) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, model: model, prompts: prompts}, nil
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) Generate(ctx context.Context, req adapter.GenerationRequest) (*adapter.Artifact, error) {
	parts := []*genai.Part{{Text: g.prompts.Build(req)}}
	for _, img := range req.ReferenceImages {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: img}})
	}
	if len(req.ProductImage) > 0 {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: req.ProductImage}})
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: parts}},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	)
	metrics.ObserveGeneration(g.Name(), int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, mapGeminiErr(err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return &adapter.Artifact{
					Name: fmt.Sprintf("variation_%d.jpg", req.VariationNum),
					MIME: p.InlineData.MIMEType,
					Data: p.InlineData.Data,
				}, nil
			}
		}
	}
	// No image part in the response is worth one more try: the model
	// occasionally answers with refusal text under load.
	return nil, fmt.Errorf("%w: gemini returned no image", domain.ErrTimeout)
}

func mapGeminiErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	case strings.Contains(msg, "DEADLINE_EXCEEDED") || strings.Contains(msg, "504"):
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	case strings.Contains(msg, "INVALID_ARGUMENT") || strings.Contains(msg, "400"):
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	default:
		return err
	}
}
