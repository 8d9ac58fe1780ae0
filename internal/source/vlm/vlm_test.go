package vlm

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MeKo-Tech/labelscan/internal/source"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  map[string]float64
	}{
		{
			name:  "plain object",
			reply: `{"calories": 370, "fats": 9.66, "proteins": 12}`,
			want:  map[string]float64{"calories": 370, "fats": 9.66, "proteins": 12},
		},
		{
			name:  "aliases and prose",
			reply: "Here you go:\n```json\n{\"energy_kcal\": 250, \"fat\": 5, \"Saturated Fat\": 2.1, \"fibre\": \"3,5 g\"}\n```",
			want:  map[string]float64{"calories": 250, "fats": 5, "saturated_fats": 2.1, "fiber": 3.5},
		},
		{
			name:  "nested per 100g",
			reply: `{"product": "oat bar {classic}", "per_100g": {"carbs": 60, "sugar": 5.5}}`,
			want:  map[string]float64{"carbs": 60, "sugars": 5.5},
		},
		{
			name:  "drops negatives and unknown keys",
			reply: `{"salt": -1, "alcohol": 2, "sugars": 0}`,
			want:  map[string]float64{"sugars": 0},
		},
		{
			name:  "canonical key wins over alias",
			reply: `{"fat": 4, "fats": 5}`,
			want:  map[string]float64{"fats": 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReply(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReply_Errors(t *testing.T) {
	for _, reply := range []string{"", "no json here", `{"alcohol": 3}`, `{"calories": 3`} {
		_, err := ParseReply(reply)
		assert.ErrorIs(t, err, source.ErrEmptyResponse, reply)
	}
}

type fakeProvider struct {
	reply  string
	err    error
	prompt string
	image  []byte
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, prompt string, jpeg []byte) (string, error) {
	f.prompt, f.image = prompt, jpeg
	return f.reply, f.err
}

func TestExtractor(t *testing.T) {
	fp := &fakeProvider{reply: `{"calories": 370, "salt": 1.1}`}
	e := New(fp, nil)
	assert.Equal(t, "fake", e.Name())

	fields, err := e.ExtractFields(context.Background(), image.NewRGBA(image.Rect(0, 0, 20, 20)))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"calories": 370, "salt": 1.1}, fields)
	assert.Equal(t, Prompt, fp.prompt)
	assert.Equal(t, []byte{0xFF, 0xD8}, fp.image[:2])

	_, err = New(&fakeProvider{err: errors.New("boom")}, nil).ExtractFields(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	var se *source.SourceError
	assert.True(t, errors.As(err, &se))

	_, err = e.ExtractFields(context.Background(), nil)
	assert.ErrorIs(t, err, source.ErrSourceFailed)
}

func TestAnthropicProvider(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "test",
			"content": [{"type": "text", "text": "{\"calories\": 206}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider("test-key", "", anthropicopt.WithBaseURL(srv.URL), anthropicopt.WithMaxRetries(0))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	reply, err := p.Complete(context.Background(), "prompt", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, `{"calories": 206}`, reply)
	assert.Equal(t, DefaultAnthropicModel, body["model"])
}

func TestOpenAIProvider(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "test",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"proteins\": 12}"}}]
		}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("test-key", "custom-model", openaiopt.WithBaseURL(srv.URL), openaiopt.WithMaxRetries(0))
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	reply, err := p.Complete(context.Background(), "prompt", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, `{"proteins": 12}`, reply)
	assert.Equal(t, "custom-model", body["model"])
	assert.True(t, strings.Contains(toJSON(t, body["messages"]), "data:image/jpeg;base64,AQID"))
}

func TestProviders_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewAnthropicProvider("", "")
	assert.ErrorIs(t, err, source.ErrMissingCredentials)
	_, err = NewOpenAIProvider("", "")
	assert.ErrorIs(t, err, source.ErrMissingCredentials)
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
