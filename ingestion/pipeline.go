// Copyright 2025 Support Center Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oripridan-dot/support-center/ai"
	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/orchestrator"
	"github.com/oripridan-dot/support-center/storage"
)

// Dependency names the pipeline routes through circuit breakers. All
// scraping and embedding work for a dependency shares one breaker, so a
// flapping endpoint trips once for everyone.
const (
	DepNetworkFetch = "network-fetch"
	DepAICompletion = "ai-completion"
	DepVectorStore  = "vector-store"
)

const (
	defaultFetchRetries = 3
	defaultEmbedRetries = 3
	defaultMaxBodySize  = 4 << 20 // 4 MiB per fetched page
)

// Pipeline turns support-document URLs into embedded, searchable
// documents. Each URL becomes a Scraping-category task (fetch, dedup,
// persist); each new document then becomes an Embedding-category task.
// All external calls go through the orchestrator's circuit breakers.
type Pipeline struct {
	docs     storage.DocumentRepository
	embedder ai.Embedder
	orch     *orchestrator.Orchestrator
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithHTTPClient sets the HTTP client used for document fetches.
// Default is a client with a 30 second timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pipeline) error {
		if client != nil {
			p.client = client
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	docs storage.DocumentRepository,
	provider ai.Provider,
	orch *orchestrator.Orchestrator,
	opts ...Option,
) (*Pipeline, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if orch == nil {
		return nil, ErrOrchestratorRequired
	}

	p := &Pipeline{
		docs:     docs,
		embedder: provider.Embedder(),
		orch:     orch,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Ingest submits one Scraping-category task per URL and returns the task
// ids. Each task fetches the URL, skips content already stored (by
// content hash), persists new documents and chains an Embedding-category
// task for them. Callers poll the orchestrator with the returned ids.
func (p *Pipeline) Ingest(ctx context.Context, priority core.Priority, urls []string) ([]core.TaskID, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}

	ids := make([]core.TaskID, 0, len(urls))
	for _, url := range urls {
		id, err := p.orch.Submit(core.CategoryScraping, priority,
			orchestrator.JobFunc(func(ctx context.Context) (any, error) {
				return p.ingestURL(ctx, url)
			}),
			defaultFetchRetries)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}

	p.logger.Info("ingestion submitted", "urls", len(urls), "priority", priority.String())
	return ids, nil
}

// IngestResult is the outcome of a single URL's scraping task.
type IngestResult struct {
	URL        string
	DocumentID core.ID
	Duplicate  bool
	// EmbeddingTask is the chained embedding task, empty for duplicates.
	EmbeddingTask core.TaskID
}

// ingestURL is the body of one Scraping-category task.
func (p *Pipeline) ingestURL(ctx context.Context, url string) (*IngestResult, error) {
	contents, err := p.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	id := core.IDFromContent(contents)
	exists, err := p.docs.HasDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("dedup check failed: %w", err)
	}
	if exists {
		p.logger.Debug("skipping duplicate content", "url", url, "id", id)
		return &IngestResult{URL: url, DocumentID: id, Duplicate: true}, nil
	}

	doc := &core.Document{
		Id:        id,
		URL:       url,
		Contents:  contents,
		FetchedAt: time.Now().UTC(),
	}
	if _, err := p.orch.Wrap(ctx, DepVectorStore, func(ctx context.Context) (any, error) {
		return p.docs.AddDocument(ctx, doc)
	}); err != nil {
		return nil, fmt.Errorf("failed to persist document: %w", err)
	}

	embedTask, err := p.submitEmbed(id)
	if err != nil {
		return nil, err
	}

	return &IngestResult{URL: url, DocumentID: id, EmbeddingTask: embedTask}, nil
}

// fetch retrieves a URL through the network-fetch breaker. Non-2xx
// responses are failures; 4xx responses are permanent since retrying the
// same request cannot change the answer.
func (p *Pipeline) fetch(ctx context.Context, url string) (string, error) {
	body, err := p.orch.Wrap(ctx, DepNetworkFetch, func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, core.Permanent(err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, core.Permanent(err)
			}
			return nil, err
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodySize))
		if err != nil {
			return nil, err
		}
		return string(data), nil
	})
	if err != nil {
		return "", err
	}
	return body.(string), nil
}

// submitEmbed chains an Embedding-category task that generates the
// document's vector and stores it.
func (p *Pipeline) submitEmbed(id core.ID) (core.TaskID, error) {
	return p.orch.Submit(core.CategoryEmbedding, core.PriorityNormal,
		orchestrator.JobFunc(func(ctx context.Context) (any, error) {
			return nil, p.embedDocument(ctx, id)
		}),
		defaultEmbedRetries)
}

// embedDocument generates and stores the embedding for one document.
func (p *Pipeline) embedDocument(ctx context.Context, id core.ID) error {
	doc, err := p.docs.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load document %d: %w", id, err)
	}

	vector, err := p.orch.Wrap(ctx, DepAICompletion, func(ctx context.Context) (any, error) {
		return p.embedder.EmbedText(ctx, doc.Contents)
	})
	if err != nil {
		return fmt.Errorf("failed to embed document %d: %w", id, err)
	}

	if _, err := p.orch.Wrap(ctx, DepVectorStore, func(ctx context.Context) (any, error) {
		return nil, p.docs.UpdateDocumentVector(ctx, id, vector.([]float32))
	}); err != nil {
		return fmt.Errorf("failed to store vector for document %d: %w", id, err)
	}

	p.logger.Debug("document embedded", "id", id, "dims", len(vector.([]float32)))
	return nil
}
