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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	supportcenter "github.com/oripridan-dot/support-center"
	"github.com/oripridan-dot/support-center/ai"
	"github.com/oripridan-dot/support-center/breaker"
	"github.com/oripridan-dot/support-center/core"
	"github.com/oripridan-dot/support-center/orchestrator"
	"github.com/oripridan-dot/support-center/storage/mongo"
)

func main() {
	app := &cli.App{
		Name:  "supportd",
		Usage: "Support document ingestion and query orchestration",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Fetch, deduplicate and embed support documents",
				ArgsUsage: "URL [URL...]",
				Action:    ingestCommand,
				Flags:     append(centerFlags(), ingestFlags()...),
			},
			{
				Name:   "reembed",
				Usage:  "Regenerate embeddings for all stored documents",
				Action: reembedCommand,
				Flags: append(centerFlags(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents per maintenance task",
						Value: 32,
					}),
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the stored support documents",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: append(centerFlags(),
					&cli.StringFlag{
						Name:  "completion-model",
						Usage: "Completion model name",
						Value: "qwen2.5:3b",
					}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// centerFlags are shared by every command that assembles a Center.
func centerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "ai-host",
			Usage: "OpenAI-compatible service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.StringFlag{
			Name:  "mongo-uri",
			Usage: "Use MongoDB for the task archive instead of the local store",
		},
		&cli.DurationFlag{
			Name:  "archive-ttl",
			Usage: "How long finished task records stay queryable",
			Value: 7 * 24 * time.Hour,
		},
		&cli.IntFlag{
			Name:  "failure-threshold",
			Usage: "Consecutive failures before a circuit opens",
			Value: 5,
		},
		&cli.IntFlag{
			Name:  "success-threshold",
			Usage: "Half-open successes before a circuit closes",
			Value: 2,
		},
		&cli.DurationFlag{
			Name:  "recovery-timeout",
			Usage: "How long an open circuit waits before probing",
			Value: 30 * time.Second,
		},
		&cli.IntFlag{
			Name:  "scrape-workers",
			Usage: "Worker count for the scraping pool (0 = default)",
		},
		&cli.IntFlag{
			Name:  "embed-workers",
			Usage: "Worker count for the embedding pool (0 = default)",
		},
	}
}

func ingestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "priority",
			Usage: "Priority for the scraping tasks (critical, high, normal, low, bulk)",
			Value: "normal",
		},
		&cli.DurationFlag{
			Name:  "wait-timeout",
			Usage: "How long to wait for submitted work to finish",
			Value: 10 * time.Minute,
		},
	}
}

// openCenter assembles a Center from the shared flags.
func openCenter(c *cli.Context, completionModel string) (*supportcenter.Center, error) {
	aiConfig := ai.NewConfig(
		ai.WithHost(c.String("ai-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithCompletionModel(completionModel),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	registry := breaker.NewRegistry(breaker.WithDefaults(breaker.Config{
		FailureThreshold: c.Int("failure-threshold"),
		SuccessThreshold: c.Int("success-threshold"),
		RecoveryTimeout:  c.Duration("recovery-timeout"),
	}))

	orchOpts := []orchestrator.Option{
		orchestrator.WithBreakerRegistry(registry),
	}
	if n := c.Int("scrape-workers"); n > 0 {
		orchOpts = append(orchOpts, orchestrator.WithWorkers(core.CategoryScraping, n))
	}
	if n := c.Int("embed-workers"); n > 0 {
		orchOpts = append(orchOpts, orchestrator.WithWorkers(core.CategoryEmbedding, n))
	}

	if uri := c.String("mongo-uri"); uri != "" {
		archive, err := mongo.NewTaskArchive(uri, c.Duration("archive-ttl"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect task archive: %w", err)
		}
		orchOpts = append(orchOpts, orchestrator.WithArchive(archive))
	}

	return supportcenter.New(c.String("db"),
		supportcenter.WithAIConfig(aiConfig),
		supportcenter.WithArchiveTTL(c.Duration("archive-ttl")),
		supportcenter.WithOrchestratorOptions(orchOpts...),
	)
}

func ingestCommand(c *cli.Context) error {
	urls := c.Args().Slice()
	if len(urls) == 0 {
		return fmt.Errorf("at least one URL is required")
	}

	priority, err := parsePriority(c.String("priority"))
	if err != nil {
		return err
	}

	center, err := openCenter(c, "none")
	if err != nil {
		return err
	}
	defer closeCenter(center)

	ctx := context.Background()
	ids, err := center.Pipeline().Ingest(ctx, priority, urls)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Submitted %d scraping tasks\n", len(ids))

	if err := waitForDrain(ctx, center.Orchestrator(), c.Duration("wait-timeout")); err != nil {
		return err
	}

	printHealth(center.Health())
	return nil
}

func reembedCommand(c *cli.Context) error {
	center, err := openCenter(c, "none")
	if err != nil {
		return err
	}
	defer closeCenter(center)

	ctx := context.Background()
	tasks, err := center.Pipeline().Reembed(ctx, c.Int("batch-size"))
	if err != nil {
		return fmt.Errorf("re-embedding failed: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "No documents to re-embed")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Submitted %d maintenance tasks\n", len(tasks))

	if err := waitForDrain(ctx, center.Orchestrator(), 30*time.Minute); err != nil {
		return err
	}

	printHealth(center.Health())
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}

	center, err := openCenter(c, c.String("completion-model"))
	if err != nil {
		return err
	}
	defer closeCenter(center)

	ctx := context.Background()
	id, err := center.Ask(ctx, core.PriorityHigh, question)
	if err != nil {
		return err
	}

	if err := waitForDrain(ctx, center.Orchestrator(), 2*time.Minute); err != nil {
		return err
	}

	result, err := center.Orchestrator().Result(ctx, id)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	answer := result.(*supportcenter.Answer)
	fmt.Println(answer.Text)
	fmt.Fprintf(os.Stderr, "\n(%d source documents)\n", len(answer.Sources))
	return nil
}

// waitForDrain polls the health snapshot until no category has queued or
// running work, or the timeout elapses.
func waitForDrain(ctx context.Context, orch *orchestrator.Orchestrator, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for tasks to finish")
		case <-ticker.C:
			snap := orch.Health()
			busy := false
			for _, cat := range snap.Categories {
				if cat.QueueDepth > 0 || cat.Running > 0 ||
					cat.Submitted > cat.Completed+cat.Failed {
					busy = true
					break
				}
			}
			if !busy {
				return nil
			}
		}
	}
}

func printHealth(snap *orchestrator.Snapshot) {
	fmt.Fprintln(os.Stderr)
	for _, cat := range snap.Categories {
		if cat.Submitted == 0 {
			continue
		}
		fmt.Fprintf(os.Stderr, "%-18s submitted=%d completed=%d failed=%d retried=%d avg=%s\n",
			cat.Category.String(),
			cat.Submitted, cat.Completed, cat.Failed, cat.Retried,
			cat.AvgDuration.Round(time.Millisecond))
	}
	for _, b := range snap.Breakers {
		fmt.Fprintf(os.Stderr, "breaker %-14s state=%s failures=%d\n",
			b.Name, b.State.String(), b.ConsecutiveFailures)
	}
}

func parsePriority(s string) (core.Priority, error) {
	switch strings.ToLower(s) {
	case "critical":
		return core.PriorityCritical, nil
	case "high":
		return core.PriorityHigh, nil
	case "normal":
		return core.PriorityNormal, nil
	case "low":
		return core.PriorityLow, nil
	case "bulk":
		return core.PriorityBulk, nil
	default:
		return 0, fmt.Errorf("invalid priority %q", s)
	}
}

func closeCenter(center *supportcenter.Center) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := center.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error closing: %v\n", err)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
