package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/EduAFernandes/ai-invoice-extraction-pipeline/constants"
)

// Document is one scanned invoice awaiting extraction. The content hash is
// the cache key; the struct itself never carries the content bytes.
type Document struct {
	ID          uuid.UUID                `json:"id"`
	Key         string                   `json:"key"` // object-storage key
	ContentHash string                   `json:"content_hash"`
	Size        int64                    `json:"size"`
	Tenant      string                   `json:"tenant,omitempty"`
	ArrivedAt   time.Time                `json:"arrived_at"`
	Status      constants.DocumentStatus `json:"status"`
}

// Batch is an ordered slice of document references for one extraction cycle.
// It owns no documents and is discarded after the cycle completes.
type Batch struct {
	Docs []*Document
}

// Size returns the number of documents referenced by the batch.
func (b Batch) Size() int { return len(b.Docs) }
