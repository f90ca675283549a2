package main

import (
	"encoding/json"
	"fmt"
	"log"
)

const (
	charsPerToken        = 4
	promptReserveTokens  = 5000
	responseSafetyFactor = 0.6
	minBatchSize         = 10
	maxBatchSize         = 100
	defaultBatchSize     = 50
	sizerSampleRows      = 50
)

// BatchAbortError reports the chunk whose failure aborted a multi-chunk run.
// Results from earlier chunks are discarded with it.
type BatchAbortError struct {
	Stage string
	Chunk int
	Total int
	Err   error
}

func (e *BatchAbortError) Error() string {
	return fmt.Sprintf("%s batch %d/%d failed: %v", e.Stage, e.Chunk, e.Total, e.Err)
}

func (e *BatchAbortError) Unwrap() error { return e.Err }

// ProgressFunc observes chunk processing. firstRow/endRow are the chunk's
// absolute row range, end exclusive.
type ProgressFunc func(stage string, chunk, totalChunks, firstRow, endRow int)

// estimateBatchSize derives a chunk size from the model's context window and
// the average serialized size of a sample of rows. The estimate is clamped
// to [10,100]; empty data or a zero-size sample falls back to 50.
func estimateBatchSize(rows []SourceRow, contextTokens int) int {
	if len(rows) == 0 {
		return defaultBatchSize
	}

	sample := rows
	if len(sample) > sizerSampleRows {
		sample = sample[:sizerSampleRows]
	}
	totalChars := 0
	for _, row := range sample {
		if data, err := json.Marshal(row); err == nil {
			totalChars += len(data)
		}
	}
	if totalChars == 0 {
		return defaultBatchSize
	}

	perRowTokens := float64(totalChars) / float64(len(sample)) / charsPerToken
	if perRowTokens <= 0 {
		return defaultBatchSize
	}

	usable := float64(contextTokens-promptReserveTokens) * responseSafetyFactor
	size := int(usable / perRowTokens)
	if size < minBatchSize {
		size = minBatchSize
	}
	if size > maxBatchSize {
		size = maxBatchSize
	}
	return size
}

// runBatched feeds rows to fn in contiguous order-preserving chunks and
// concatenates the per-chunk results, one element per row. When everything
// fits one chunk, fn runs once and its result is returned as is. The first
// failing chunk aborts the whole run.
func runBatched(rows []SourceRow, batchSize int, stage string, progress ProgressFunc, fn func(start int, chunk []SourceRow) ([]string, error)) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if batchSize < 1 {
		batchSize = defaultBatchSize
	}

	if len(rows) <= batchSize {
		if progress != nil {
			progress(stage, 1, 1, 0, len(rows))
		}
		return fn(0, rows)
	}

	total := (len(rows) + batchSize - 1) / batchSize
	results := make([]string, 0, len(rows))
	chunk := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk++
		if progress != nil {
			progress(stage, chunk, total, start, end)
		}
		log.Printf("%s batch %d/%d rows=%d-%d", stage, chunk, total, start, end-1)

		out, err := fn(start, rows[start:end])
		if err != nil {
			return nil, &BatchAbortError{Stage: stage, Chunk: chunk, Total: total, Err: err}
		}
		// A short or long chunk would shift every row after it.
		if len(out) != end-start {
			return nil, &BatchAbortError{
				Stage: stage, Chunk: chunk, Total: total,
				Err: fmt.Errorf("chunk returned %d results for %d rows", len(out), end-start),
			}
		}
		results = append(results, out...)
	}
	return results, nil
}
