package vlm

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIProvider queries the Chat Completions API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. An empty apiKey falls back to
// OPENAI_API_KEY.
func NewOpenAIProvider(apiKey, model string, opts ...option.RequestOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, source.Wrap("NewOpenAIProvider", source.ErrMissingCredentials, "set OPENAI_API_KEY")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	options := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{client: openai.NewClient(options...), model: model}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends the prompt with the image as a data URL in JSON mode.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, jpeg []byte) (string, error) {
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Model:    p.model,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", source.Wrap("Complete", err, "openai chat completion request")
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", source.Wrap("Complete", source.ErrEmptyResponse, "openai reply has no content")
	}
	return completion.Choices[0].Message.Content, nil
}
