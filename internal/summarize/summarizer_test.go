package summarize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/fyrsmithlabs/folio/internal/retry"
)

// fakeModel scripts GenerateContent responses per attempt.
type fakeModel struct {
	responses []func() (*llms.ContentResponse, error)
	calls     int
	prompts   []string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		if m.Role == schema.ChatMessageTypeHuman {
			for _, p := range m.Parts {
				if tp, ok := p.(llms.TextContent); ok {
					f.prompts = append(f.prompts, tp.Text)
				}
			}
		}
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx]()
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not implemented")
}

func content(text string) func() (*llms.ContentResponse, error) {
	return func() (*llms.ContentResponse, error) {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
	}
}

func failure(err error) func() (*llms.ContentResponse, error) {
	return func() (*llms.ContentResponse, error) { return nil, err }
}

func newTestSummarizer(model llms.Model) *Summarizer {
	return &Summarizer{
		model:  model,
		policy: retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond},
		strip:  bluemonday.StrictPolicy(),
		logger: zap.NewNop(),
	}
}

func TestSummarizeReadme(t *testing.T) {
	model := &fakeModel{responses: []func() (*llms.ContentResponse, error){content("• point one")}}
	s := newTestSummarizer(model)

	got := s.Summarize(context.Background(), "<h1>Demo</h1><p>A demo repo.</p>", KindReadme)
	assert.Equal(t, "• point one", got)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "<readme>")
	assert.Contains(t, model.prompts[0], "A demo repo.")
	assert.NotContains(t, model.prompts[0], "<h1>", "markup is stripped before prompting")
}

func TestSummarizeCorpusPrompt(t *testing.T) {
	model := &fakeModel{responses: []func() (*llms.ContentResponse, error){content("• code")}}
	s := newTestSummarizer(model)

	got := s.Summarize(context.Background(), "===== FILE: main.py =====\nprint('hi')", KindCorpus)
	assert.Equal(t, "• code", got)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "<code>")
	assert.Contains(t, model.prompts[0], "main.py")
}

func TestSummarizeRecoversOnThirdAttempt(t *testing.T) {
	model := &fakeModel{responses: []func() (*llms.ContentResponse, error){
		failure(errors.New("502 bad gateway")),
		failure(errors.New("timeout")),
		content("• recovered"),
	}}
	s := newTestSummarizer(model)
	start := time.Now()

	got := s.Summarize(context.Background(), "<p>text</p>", KindReadme)

	assert.Equal(t, "• recovered", got)
	assert.Equal(t, 3, model.calls)
	// Waited baseDelay then 2*baseDelay.
	assert.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}

func TestSummarizeEmptyCompletionTriggersRetry(t *testing.T) {
	model := &fakeModel{responses: []func() (*llms.ContentResponse, error){
		content(""),
		content("• filled"),
	}}
	s := newTestSummarizer(model)

	got := s.Summarize(context.Background(), "<p>text</p>", KindReadme)
	assert.Equal(t, "• filled", got)
	assert.Equal(t, 2, model.calls)
}

func TestSummarizeExhaustionReturnsEmpty(t *testing.T) {
	model := &fakeModel{responses: []func() (*llms.ContentResponse, error){
		failure(errors.New("boom")),
	}}
	s := newTestSummarizer(model)

	got := s.Summarize(context.Background(), "<p>text</p>", KindReadme)
	assert.Empty(t, got)
	assert.Equal(t, 3, model.calls, "all attempts consumed before giving up")
}

func TestSummarizeShortCircuits(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		model := &fakeModel{responses: []func() (*llms.ContentResponse, error){content("x")}}
		got := newTestSummarizer(model).Summarize(context.Background(), "", KindReadme)
		assert.Empty(t, got)
		assert.Zero(t, model.calls)
	})

	t.Run("no credential", func(t *testing.T) {
		s, err := New(config.OpenRouterConfig{MaxAttempts: 3}, zap.NewNop())
		require.NoError(t, err)
		assert.Empty(t, s.Summarize(context.Background(), "<p>text</p>", KindReadme))
	})
}
