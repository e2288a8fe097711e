package ai

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"slideshow-batch/internal/domain/ports/adapter"
)

// Encoder clamps free-form caption text to a token budget. Satisfied by
// *tiktoken.Tiktoken.
type Encoder interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// PromptBuilder renders the generation prompt for one variation. Scraped
// captions are unbounded user content, so they are clamped to a token budget
// before they reach the model.
type PromptBuilder struct {
	enc       Encoder
	maxTokens int
}

func NewPromptBuilder(maxTokens int) *PromptBuilder {
	b := &PromptBuilder{maxTokens: maxTokens}
	if enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE); err == nil {
		b.enc = enc
	}
	return b
}

func (b *PromptBuilder) Build(req adapter.GenerationRequest) string {
	var sb strings.Builder
	sb.WriteString("Recreate this slideshow image in the same visual style, ")
	sb.WriteString("naturally featuring the attached product photo as the hero object. ")
	sb.WriteString("Keep composition, lighting and text placement consistent with the reference images.")

	if desc := strings.TrimSpace(req.ProductDescription); desc != "" {
		fmt.Fprintf(&sb, " Product: %s.", desc)
	}
	if caption := b.clamp(strings.TrimSpace(req.Caption)); caption != "" {
		fmt.Fprintf(&sb, " Original caption for context: %q.", caption)
	}
	// The ordinal nudges the model toward a different take for each sibling.
	fmt.Fprintf(&sb, " Variation %d: choose a distinct angle, background or color accent.", req.VariationNum)
	return sb.String()
}

// clamp truncates text to the configured token budget, falling back to a rune
// cut when no encoder is available (tiktoken fetches its BPE ranks lazily and
// may be unavailable offline).
func (b *PromptBuilder) clamp(text string) string {
	if b.maxTokens <= 0 || text == "" {
		return text
	}
	if b.enc != nil {
		tokens := b.enc.Encode(text, nil, nil)
		if len(tokens) <= b.maxTokens {
			return text
		}
		return b.enc.Decode(tokens[:b.maxTokens])
	}
	// Rough fallback: ~4 runes per token.
	runes := []rune(text)
	if limit := b.maxTokens * 4; len(runes) > limit {
		return string(runes[:limit])
	}
	return text
}
