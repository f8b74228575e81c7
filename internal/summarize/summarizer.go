// Package summarize generates short natural-language summaries of
// repositories via an OpenAI-compatible chat completions endpoint.
//
// Failures degrade to an empty summary rather than surfacing to the
// caller; the enrichment pipeline treats an empty result as "nothing to
// show yet" and retries on the next refresh.
package summarize

import (
	"context"
	"errors"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/fyrsmithlabs/folio/internal/retry"
)

// Kind selects the prompt template.
type Kind int

const (
	// KindReadme summarizes rendered README markup.
	KindReadme Kind = iota
	// KindCorpus summarizes concatenated source files.
	KindCorpus
)

var errEmptyCompletion = errors.New("empty completion content")

// Summarizer issues completion requests with bounded retries and
// exponential backoff.
type Summarizer struct {
	model  llms.Model // nil when no API key is configured
	policy retry.Policy
	strip  *bluemonday.Policy
	logger *zap.Logger
}

// New creates a summarizer. Without an API key the summarizer is a
// no-op returning empty strings.
func New(cfg config.OpenRouterConfig, logger *zap.Logger) (*Summarizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Summarizer{
		policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay.Duration(),
		},
		strip:  bluemonday.StrictPolicy(),
		logger: logger,
	}

	if !cfg.APIKey.IsSet() {
		logger.Warn("no summarization API key configured, summaries disabled")
		return s, nil
	}

	llm, err := openai.New(
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.SummaryModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}
	s.model = llm
	return s, nil
}

// Summarize returns a bullet-point summary of text, or an empty string
// when no credential is configured, text is empty, or all attempts are
// exhausted.
func (s *Summarizer) Summarize(ctx context.Context, text string, kind Kind) string {
	if s.model == nil || text == "" {
		return ""
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt(kind)),
		llms.TextParts(schema.ChatMessageTypeHuman, s.userPrompt(text, kind)),
	}

	summary, err := retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
		resp, err := s.model.GenerateContent(ctx, messages, llms.WithTemperature(0.7))
		if err != nil {
			s.logger.Warn("summary request failed", zap.Error(err))
			return "", err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
			return "", errEmptyCompletion
		}
		return resp.Choices[0].Content, nil
	})
	if err != nil {
		s.logger.Warn("summary generation exhausted retries", zap.Error(err))
		return ""
	}
	return summary
}

func systemPrompt(kind Kind) string {
	if kind == KindCorpus {
		return "You are a helpful assistant that summarises codebases."
	}
	return "You are a helpful assistant that summarises README files."
}

func (s *Summarizer) userPrompt(text string, kind Kind) string {
	if kind == KindCorpus {
		return "Analyze the following concatenated source code files from a GitHub repository. " +
			"Respond with 3-5 bullet points highlighting the repository's purpose, key " +
			"features, technologies used, and any notable implementation details. **DO NOT** " +
			"include any other text in your response other than the summary." +
			"\n\n<code>\n" + text + "\n</code>"
	}

	// Strip markup so the model sees plain text.
	plain := s.strip.Sanitize(text)
	return "Provide a concise summary of the following GitHub repository README. " +
		"Respond with 3-5 bullet points highlighting the purpose, key features, " +
		"and usage if relevant. **DO NOT** include any other text in your response other than the summary." +
		"\n\n<readme>\n" + plain + "\n</readme>"
}
