package ai

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"slideshow-batch/internal/domain/ports/adapter"
)

var _ adapter.GenerationAdapter = (*NoopAdapter)(nil)

// NoopAdapter produces a flat placeholder image without calling any provider.
// Used in dev mode so the whole pipeline can run end to end with no API keys.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter { return &NoopAdapter{} }

func (NoopAdapter) Name() string { return "noop" }

func (NoopAdapter) Generate(ctx context.Context, req adapter.GenerationRequest) (*adapter.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	shade := uint8(40 * (req.VariationNum % 6))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	fill := color.RGBA{R: shade, G: 128, B: 255 - shade, A: 255}
	for y := 8; y < 56; y++ {
		for x := 8; x < 56; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return &adapter.Artifact{
		Name: fmt.Sprintf("variation_%d.jpg", req.VariationNum),
		MIME: "image/jpeg",
		Data: buf.Bytes(),
	}, nil
}
