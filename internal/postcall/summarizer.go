package postcall

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const summaryPrompt = "Summarize this phone call between a caller and a receptionist in at most two sentences. " +
	"Mention the caller's intent and any appointment, cancellation, or message. Transcript:\n\n"

// Summarizer produces a short natural-language summary of a call transcript
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// GeminiSummarizer summarizes transcripts with the Gemini API
type GeminiSummarizer struct {
	client *genai.Client
	model  string
	logger zerolog.Logger
}

// NewGeminiSummarizer creates a summarizer backed by the given model
func NewGeminiSummarizer(ctx context.Context, apiKey, model string, logger zerolog.Logger) (*GeminiSummarizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiSummarizer{
		client: client,
		model:  model,
		logger: logger.With().Str("component", "summarizer").Logger(),
	}, nil
}

func (s *GeminiSummarizer) Summarize(ctx context.Context, transcript string) (string, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(summaryPrompt+transcript), nil)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("summary generation returned empty response")
	}
	return text, nil
}
