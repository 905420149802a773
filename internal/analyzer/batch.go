package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brokerpoint/polizza-analyzer/internal/adapter/observability"
	"github.com/brokerpoint/polizza-analyzer/internal/domain"
)

// ProgressFunc is invoked after each completed chunk with the number of
// specs processed so far, the fixed total, and the chunk's results.
type ProgressFunc func(processed, total int, chunk []domain.ExtractionResult)

// BatchAnalyze runs AnalyzeGuarantee for every spec with bounded concurrency.
//
// The input is partitioned into consecutive chunks of batchSize; every item
// in a chunk runs concurrently and writes into its own result slot, so the
// returned slice always has the same length and order as specs regardless of
// completion order. A failing item (provider exhaustion, panic, AI
// unavailable) becomes a failure result at its index and never disturbs its
// siblings. Between chunks the scheduler pauses for the configured base
// retry delay to pace the provider; the pause is skipped after the final
// chunk and when ctx is done.
func (s *Service) BatchAnalyze(ctx context.Context, policyText string, specs []domain.GuaranteeSpec, batchSize int, onProgress ProgressFunc) []domain.ExtractionResult {
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	total := len(specs)
	results := make([]domain.ExtractionResult, total)

	for chunkStart := 0; chunkStart < total; chunkStart += batchSize {
		chunkEnd := chunkStart + batchSize
		if chunkEnd > total {
			chunkEnd = total
		}

		var wg sync.WaitGroup
		for i := chunkStart; i < chunkEnd; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = s.analyzeInSlot(ctx, policyText, specs[idx])
			}(i)
		}
		wg.Wait()

		observability.BatchChunksTotal.Inc()
		processed := chunkEnd
		notifyProgress(onProgress, processed, total, results[chunkStart:chunkEnd])

		if chunkEnd < total {
			select {
			case <-ctx.Done():
				// Remaining slots stay as zero-value failure results; fill
				// them explicitly so the slice is fully annotated.
				for i := chunkEnd; i < total; i++ {
					results[i] = domain.ExtractionResult{
						Success: false,
						Found:   false,
						Error:   ctx.Err().Error(),
					}
				}
				return results
			case <-time.After(s.batchDelay):
			}
		}
	}
	return results
}

// analyzeInSlot isolates one item: panics and errors are captured into the
// item's failure result so the chunk's other slots are unaffected.
func (s *Service) analyzeInSlot(ctx context.Context, policyText string, spec domain.GuaranteeSpec) (res domain.ExtractionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic during guarantee analysis",
				slog.String("guarantee", spec.Title),
				slog.Any("recover", rec))
			res = domain.ExtractionResult{
				Success: false,
				Found:   false,
				Error:   fmt.Sprintf("panic: %v", rec),
			}
		}
	}()

	r, err := s.AnalyzeGuarantee(ctx, policyText, spec)
	if err != nil {
		return domain.ExtractionResult{Success: false, Found: false, Error: err.Error()}
	}
	return r
}

// notifyProgress guards the caller-supplied callback: a panic inside it is
// logged and suppressed, never allowed to abort the batch.
func notifyProgress(fn ProgressFunc, processed, total int, chunk []domain.ExtractionResult) {
	if fn == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("progress callback panicked", slog.Any("recover", rec))
		}
	}()
	fn(processed, total, chunk)
}

// SummarizeProgress folds a prefix of batch results into a BatchProgress
// snapshot. Processed is the number of results inspected, never more than
// the fixed total.
func SummarizeProgress(results []domain.ExtractionResult, total int) domain.BatchProgress {
	p := domain.BatchProgress{Processed: len(results), Total: total}
	if p.Processed > total {
		p.Processed = total
	}
	for _, r := range results {
		switch {
		case !r.Success:
			p.Errors++
		case r.Found:
			p.Found++
		default:
			p.NotFound++
		}
	}
	return p
}
