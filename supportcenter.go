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


package supportcenter

import (
	"context"
	"log/slog"
	"time"

	"github.com/oripridan-dot/support-center/ai"
	"github.com/oripridan-dot/support-center/ai/openai"
	"github.com/oripridan-dot/support-center/ingestion"
	"github.com/oripridan-dot/support-center/orchestrator"
	"github.com/oripridan-dot/support-center/storage"
	"github.com/oripridan-dot/support-center/storage/badger"
)

// Center wires storage, AI services, the task orchestrator and the
// ingestion pipeline into one handle. It is the embedding-friendly
// entry point; cmd/supportd is a thin CLI over it.
type Center struct {
	backend  *badger.Backend
	archive  storage.TaskArchive
	docs     storage.DocumentRepository
	provider ai.Provider
	orch     *orchestrator.Orchestrator
	pipeline *ingestion.Pipeline
	logger   *slog.Logger
}

// CenterOption configures a Center.
type CenterOption func(*centerOptions)

type centerOptions struct {
	aiConfig   *ai.Config
	provider   ai.Provider // overrides aiConfig when set
	archiveTTL time.Duration
	inMemory   bool
	orchOpts   []orchestrator.Option
}

// WithAIConfig sets the AI service configuration used to build the
// default OpenAI-compatible provider.
func WithAIConfig(cfg *ai.Config) CenterOption {
	return func(o *centerOptions) {
		if cfg != nil {
			o.aiConfig = cfg
		}
	}
}

// WithProvider supplies a pre-built AI provider, bypassing the default
// OpenAI-compatible one. Tests pass mock providers here.
func WithProvider(provider ai.Provider) CenterOption {
	return func(o *centerOptions) {
		o.provider = provider
	}
}

// WithArchiveTTL sets how long finished task records stay queryable.
// Zero keeps the archive default; negative disables expiry.
func WithArchiveTTL(ttl time.Duration) CenterOption {
	return func(o *centerOptions) {
		o.archiveTTL = ttl
	}
}

// WithInMemory opens the storage backend in memory, for tests and
// throwaway runs.
func WithInMemory() CenterOption {
	return func(o *centerOptions) {
		o.inMemory = true
	}
}

// WithOrchestratorOptions forwards options to the embedded orchestrator
// (worker counts, timeouts, breaker registry and so on).
func WithOrchestratorOptions(opts ...orchestrator.Option) CenterOption {
	return func(o *centerOptions) {
		o.orchOpts = append(o.orchOpts, opts...)
	}
}

// New opens the storage backend at filePath and assembles the full
// support center: task archive, document repository, AI provider,
// orchestrator and ingestion pipeline.
func New(filePath string, opts ...CenterOption) (*Center, error) {
	options := &centerOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	archive := badger.NewTaskArchive(backend, options.archiveTTL)
	docs := badger.NewDocumentRepository(backend)

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	orchOpts := append([]orchestrator.Option{
		orchestrator.WithArchive(archive),
	}, options.orchOpts...)

	orch, err := orchestrator.New(orchOpts...)
	if err != nil {
		provider.Close()
		backend.Close()
		return nil, err
	}

	pipeline, err := ingestion.NewPipeline(docs, provider, orch)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		orch.Shutdown(shutdownCtx)
		cancel()
		provider.Close()
		backend.Close()
		return nil, err
	}

	return &Center{
		backend:  backend,
		archive:  archive,
		docs:     docs,
		provider: provider,
		orch:     orch,
		pipeline: pipeline,
		logger:   slog.Default().With("component", "supportcenter"),
	}, nil
}

// Close shuts down the orchestrator and releases storage and AI
// resources. In-flight attempts get until ctx to drain.
func (c *Center) Close(ctx context.Context) error {
	if err := c.orch.Shutdown(ctx); err != nil {
		c.logger.Error("error shutting down orchestrator", "err", err)
	}

	if err := c.provider.Close(); err != nil {
		c.logger.Error("error closing AI provider", "err", err)
	}

	if err := c.docs.Close(); err != nil {
		c.logger.Error("error closing document repository", "err", err)
		return err
	}
	if err := c.archive.Close(); err != nil {
		c.logger.Error("error closing task archive", "err", err)
		return err
	}

	if err := c.backend.Close(); err != nil {
		c.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Orchestrator exposes the task orchestrator for direct submissions,
// status polling and health reports.
func (c *Center) Orchestrator() *orchestrator.Orchestrator {
	return c.orch
}

// Documents exposes the document repository.
func (c *Center) Documents() storage.DocumentRepository {
	return c.docs
}

// Pipeline exposes the ingestion pipeline.
func (c *Center) Pipeline() *ingestion.Pipeline {
	return c.pipeline
}

// Health returns the orchestrator's current health snapshot.
func (c *Center) Health() *orchestrator.Snapshot {
	return c.orch.Health()
}
