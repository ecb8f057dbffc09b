// Package storage abstracts the object store holding scanned invoice PDFs.
// The core only ever lists pending keys and fetches bytes; it never writes
// documents back.
package storage

import (
	"context"
	"time"
)

// ObjectInfo describes one stored document.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Storage is the document-fetch collaborator. Fetch failures surface as
// errors wrapping common.ErrDocumentUnavailable, never as silent skips.
type Storage interface {
	// List returns the objects under prefix, in lexical key order.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Fetch returns the full content of one object.
	Fetch(ctx context.Context, key string) ([]byte, error)
}
