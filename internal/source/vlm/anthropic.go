package vlm

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// AnthropicProvider queries the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider creates a provider. An empty apiKey falls back to
// ANTHROPIC_API_KEY.
func NewAnthropicProvider(apiKey, model string, opts ...option.RequestOption) (*AnthropicProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, source.Wrap("NewAnthropicProvider", source.ErrMissingCredentials, "set ANTHROPIC_API_KEY")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{
		client:    anthropic.NewClient(options...),
		model:     model,
		maxTokens: 1024,
	}, nil
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Complete sends the prompt with the image and concatenates text blocks of the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(jpeg)),
				anthropic.NewTextBlock(prompt),
			),
		},
	}
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", source.Wrap("Complete", err, "anthropic messages request")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", source.Wrap("Complete", source.ErrEmptyResponse, "anthropic reply has no text")
	}
	return sb.String(), nil
}
