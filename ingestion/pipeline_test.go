package ingestion

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oripridan-dot/support-center/ai/mock"
	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/orchestrator"
	"github.com/oripridan-dot/support-center/storage"
	"github.com/oripridan-dot/support-center/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	pipeline *Pipeline
	orch     *orchestrator.Orchestrator
	docs     storage.DocumentRepository
	provider *mock.MockProvider
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	_, docs, backend, err := badger.NewMemoryStores(0)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	orch, err := orchestrator.New(
		orchestrator.WithDequeueWait(10*time.Millisecond),
		orchestrator.WithDefaultSchedule(orchestrator.FixedSchedule{Interval: 0}),
		orchestrator.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	provider := mock.NewMockProvider().(*mock.MockProvider)
	pipeline, err := NewPipeline(docs, provider, orch,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	return &pipelineFixture{
		pipeline: pipeline,
		orch:     orch,
		docs:     docs,
		provider: provider,
	}
}

func waitForResult(t *testing.T, orch *orchestrator.Orchestrator, id core.TaskID) (any, error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := orch.Status(context.Background(), id)
		require.NoError(t, err)
		if status.Terminal() {
			return orch.Result(context.Background(), id)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never finished", id)
	return nil, nil
}

func TestPipeline_RequiresCollaborators(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := NewPipeline(nil, f.provider, f.orch)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewPipeline(f.docs, nil, f.orch)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	_, err = NewPipeline(f.docs, f.provider, nil)
	assert.ErrorIs(t, err, ErrOrchestratorRequired)
}

func TestPipeline_IngestRejectsEmpty(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.pipeline.Ingest(context.Background(), core.PriorityNormal, nil)
	assert.ErrorIs(t, err, ErrNoURLs)
}

func TestPipeline_IngestFetchesAndEmbeds(t *testing.T) {
	f := newPipelineFixture(t)

	const page = "How to reset your router: hold the button for ten seconds."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	ids, err := f.pipeline.Ingest(context.Background(), core.PriorityNormal, []string{server.URL})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	result, err := waitForResult(t, f.orch, ids[0])
	require.NoError(t, err)

	ingested := result.(*IngestResult)
	assert.False(t, ingested.Duplicate)
	assert.Equal(t, core.IDFromContent(page), ingested.DocumentID)
	require.NotEmpty(t, ingested.EmbeddingTask)

	_, err = waitForResult(t, f.orch, ingested.EmbeddingTask)
	require.NoError(t, err)

	doc, err := f.docs.GetDocument(context.Background(), ingested.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, page, doc.Contents)
	assert.NotEmpty(t, doc.Vector, "the chained embedding task must store a vector")
	assert.Greater(t, f.provider.GetMockEmbedder().CallCount(), 0)
}

func TestPipeline_IngestSkipsDuplicates(t *testing.T) {
	f := newPipelineFixture(t)

	const page = "Same content served from two URLs."
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	ids, err := f.pipeline.Ingest(context.Background(), core.PriorityNormal,
		[]string{server.URL + "/a"})
	require.NoError(t, err)
	result, err := waitForResult(t, f.orch, ids[0])
	require.NoError(t, err)
	require.False(t, result.(*IngestResult).Duplicate)

	ids, err = f.pipeline.Ingest(context.Background(), core.PriorityNormal,
		[]string{server.URL + "/b"})
	require.NoError(t, err)
	result, err = waitForResult(t, f.orch, ids[0])
	require.NoError(t, err)

	dup := result.(*IngestResult)
	assert.True(t, dup.Duplicate, "identical content must be deduplicated by hash")
	assert.Empty(t, dup.EmbeddingTask, "duplicates must not chain embedding work")
}

func TestPipeline_ClientErrorIsPermanent(t *testing.T) {
	f := newPipelineFixture(t)

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	ids, err := f.pipeline.Ingest(context.Background(), core.PriorityNormal, []string{server.URL})
	require.NoError(t, err)

	_, err = waitForResult(t, f.orch, ids[0])
	require.Error(t, err)
	assert.Equal(t, 1, hits, "a 4xx response must not be retried")
}

func TestPipeline_ServerErrorRetries(t *testing.T) {
	f := newPipelineFixture(t)

	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("finally up"))
	}))
	defer server.Close()

	ids, err := f.pipeline.Ingest(context.Background(), core.PriorityNormal, []string{server.URL})
	require.NoError(t, err)

	result, err := waitForResult(t, f.orch, ids[0])
	require.NoError(t, err)
	assert.False(t, result.(*IngestResult).Duplicate)
	assert.Equal(t, 3, hits, "5xx responses are transient and must be retried")
}

func TestPipeline_ReembedRefreshesVectors(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	for _, contents := range []string{
		"Article one about billing.",
		"Article two about shipping.",
		"Article three about returns.",
	} {
		_, err := f.docs.AddDocument(ctx, &core.Document{
			URL:       "https://support.example/" + contents[:7],
			Contents:  contents,
			FetchedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	tasks, err := f.pipeline.Reembed(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2, "3 documents at batch size 2 means 2 maintenance tasks")

	for _, id := range tasks {
		_, err := waitForResult(t, f.orch, id)
		require.NoError(t, err)
	}

	ids, err := f.docs.ListDocumentIDs(ctx)
	require.NoError(t, err)
	for _, id := range ids {
		doc, err := f.docs.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.NotEmpty(t, doc.Vector)
	}
}

func TestPipeline_ReembedEmptyStore(t *testing.T) {
	f := newPipelineFixture(t)
	tasks, err := f.pipeline.Reembed(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
