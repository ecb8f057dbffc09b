// Package batch partitions pending documents into bounded work batches so
// per-call overhead is amortized across provider invocations.
package batch

import (
	"fmt"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/common"
	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/internal/entity"
)

// Assemble partitions pending documents into batches of at most maxBatchSize,
// preserving arrival order. The final batch may be smaller. Pure function: no
// I/O, no mutation of the input slice, and stable for a given input.
func Assemble(pending []*entity.Document, maxBatchSize int) ([]entity.Batch, error) {
	if maxBatchSize <= 0 {
		return nil, fmt.Errorf("%w: max batch size must be positive, got %d", common.ErrInvalidInput, maxBatchSize)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	batches := make([]entity.Batch, 0, (len(pending)+maxBatchSize-1)/maxBatchSize)
	for start := 0; start < len(pending); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batches = append(batches, entity.Batch{Docs: pending[start:end:end]})
	}
	return batches, nil
}
