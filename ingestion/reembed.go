package ingestion

import (
	"context"
	"fmt"

	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/orchestrator"
)

const defaultReembedBatchSize = 32

// Reembed walks every stored document and submits Maintenance-category
// tasks that regenerate its embedding, one task per batch of ids. It is
// the bulk path used after switching embedding models; Maintenance runs
// on its own pool so it never competes with interactive work.
//
// Returns the submitted task ids so callers can poll for completion.
func (p *Pipeline) Reembed(ctx context.Context, batchSize int) ([]core.TaskID, error) {
	if batchSize < 1 {
		batchSize = defaultReembedBatchSize
	}

	ids, err := p.docs.ListDocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var tasks []core.TaskID
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		taskID, err := p.orch.Submit(core.CategoryMaintenance, core.PriorityBulk,
			orchestrator.JobFunc(func(ctx context.Context) (any, error) {
				return p.reembedBatch(ctx, batch)
			}),
			defaultEmbedRetries)
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, taskID)
	}

	p.logger.Info("re-embedding submitted", "documents", len(ids), "batches", len(tasks))
	return tasks, nil
}

// reembedBatch regenerates embeddings for one batch of documents.
// Individual document failures abort the batch so the task-level retry
// policy can run it again.
func (p *Pipeline) reembedBatch(ctx context.Context, ids []core.ID) (int, error) {
	for _, id := range ids {
		if err := p.embedDocument(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
