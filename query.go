package supportcenter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/ingestion"
	"github.com/oripridan-dot/support-center/orchestrator"
)

const (
	defaultQueryRetries = 1
	defaultMatchLimit   = 5
	defaultMinScore     = 0.3
)

// ErrNoMatches is returned when no stored document is similar enough to
// answer a question.
var ErrNoMatches = errors.New("no matching support documents")

// Answer is the outcome of an interactive query task.
type Answer struct {
	Question string
	Text     string
	Sources  []*core.DocumentMatch
}

// Ask submits an interactive-query task that retrieves the most similar
// support documents and asks the completion model to answer from them.
// Interactive queries run on their own pool, so a scraping or embedding
// backlog cannot delay them. The returned task id is polled through the
// orchestrator; the result is an *Answer.
func (c *Center) Ask(ctx context.Context, priority core.Priority, question string) (core.TaskID, error) {
	if strings.TrimSpace(question) == "" {
		return "", core.ErrEmptyContent
	}

	return c.orch.Submit(core.CategoryInteractiveQuery, priority,
		orchestrator.JobFunc(func(ctx context.Context) (any, error) {
			return c.answer(ctx, question)
		}),
		defaultQueryRetries)
}

// answer is the body of one interactive-query task.
func (c *Center) answer(ctx context.Context, question string) (*Answer, error) {
	vector, err := c.orch.Wrap(ctx, ingestion.DepAICompletion, func(ctx context.Context) (any, error) {
		return c.provider.Embedder().EmbedText(ctx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	matchesAny, err := c.orch.Wrap(ctx, ingestion.DepVectorStore, func(ctx context.Context) (any, error) {
		return c.docs.FindSimilar(ctx, vector.([]float32), defaultMinScore, defaultMatchLimit)
	})
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	matches := matchesAny.([]*core.DocumentMatch)
	if len(matches) == 0 {
		return nil, core.Permanent(ErrNoMatches)
	}

	prompt := buildPrompt(question, matches)
	text, err := c.orch.Wrap(ctx, ingestion.DepAICompletion, func(ctx context.Context) (any, error) {
		return c.provider.Completer().Complete(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	return &Answer{
		Question: question,
		Text:     text.(string),
		Sources:  matches,
	}, nil
}

// buildPrompt lays the retrieved documents before the question.
func buildPrompt(question string, matches []*core.DocumentMatch) string {
	var b strings.Builder
	b.WriteString("Support documents:\n\n")
	for i, m := range matches {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, m.Document.URL, m.Document.Contents)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
