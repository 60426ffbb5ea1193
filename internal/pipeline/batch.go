package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/prefixscan/internal/config"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor runs the pipelines of several variants.
// Each variant gets a fresh pipeline from the factory. A failing variant
// never stops the others.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each variant.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of variants crawled at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent variants.
// Default is 1.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     config.DefaultBatchSize,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch runs every variant and returns the runs in input order.
// Variants not started because ctx was cancelled are returned with Err set
// and no Result. The error is ctx.Err() if the batch was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, variants []config.Settings) ([]*Run, error) {
	runs := make([]*Run, len(variants))
	err := bp.ProcessBatchWithCallback(ctx, variants, func(run *Run, index int) {
		runs[index] = run
	})
	return runs, err
}

// ProcessBatchWithCallback runs every variant and calls callback with each
// finished run and its index in variants. The callback may be called from
// several goroutines when concurrency is above one.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	variants []config.Settings,
	callback func(run *Run, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_variants", len(variants),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Not errgroup.WithContext: a failed variant must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, s := range variants {
		g.Go(func() error {
			run := NewRun(s)

			if err := ctx.Err(); err != nil {
				run.Err = err
				callback(run, i)
				return nil
			}

			bp.logger.Info("crawling variant",
				"variant", s.Variant,
				"index", i+1,
				"total", len(variants),
			)

			if err := bp.pipelineFactory().Execute(ctx, run); err != nil {
				bp.logger.Warn("variant failed",
					"variant", s.Variant,
					"error", err,
				)
			}

			callback(run, i)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return errors; failures are recorded on runs

	bp.logger.Info("batch processing complete",
		"total_variants", len(variants),
		"elapsed", time.Since(startTime),
	)

	return ctx.Err()
}
