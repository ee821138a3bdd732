package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/neboloop/hotword/internal/audio"
)

// OpenAI uses the hosted audio transcription endpoint.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a client for apiKey. Extra options are passed to the
// SDK, for example a base URL for compatible servers.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Transcribe(ctx context.Context, req Request) (string, error) {
	path, err := audio.TempWAV("hotword-asr-*.wav", req.Samples, req.SampleRate)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(f, "utterance.wav", "audio/wav"),
		Model: openai.AudioModel(o.model),
	}
	if req.Language != "" {
		params.Language = openai.String(req.Language)
	}
	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
