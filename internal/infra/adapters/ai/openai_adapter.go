package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/ports/adapter"
	"slideshow-batch/internal/infra/metrics"
)

var _ adapter.GenerationAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter is the fallback image provider. It cannot take reference
// images as input, so it works from the prompt alone; quality differs but a
// variation still gets produced when the primary provider is down.
type OpenAIAdapter struct {
	client  openai.Client
	model   string
	prompts *PromptBuilder
}

func NewOpenAIAdapter(apiKey, model string, prompts *PromptBuilder) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	if model == "" {
		model = "dall-e-3"
	}
	return &OpenAIAdapter{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		prompts: prompts,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Generate(ctx context.Context, req adapter.GenerationRequest) (*adapter.Artifact, error) {
	start := time.Now()
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         o.prompts.Build(req),
		Model:          openai.ImageModel(o.model),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           openai.ImageGenerateParamsSize1024x1024,
	})
	metrics.ObserveGeneration(o.Name(), int(time.Since(start).Milliseconds()), err == nil)
	if err != nil {
		return nil, mapOpenAIErr(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("%w: openai returned no image", domain.ErrTimeout)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image payload: %v", domain.ErrInvalidInput, err)
	}
	return &adapter.Artifact{
		Name: fmt.Sprintf("variation_%d.png", req.VariationNum),
		MIME: "image/png",
		Data: data,
	}, nil
}

func mapOpenAIErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		case 408, 502, 503, 504:
			return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		case 400, 422:
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	}
	return err
}
