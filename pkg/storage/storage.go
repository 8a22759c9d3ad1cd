package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Open when no blob exists for the id.
var ErrNotFound = errors.New("blob not found")

// BlobInfo describes a stored blob.
type BlobInfo struct {
	ID          uuid.UUID
	ContentType string
	FileName    string
	Length      int64
	CreatedAt   time.Time
}

// Store persists audio payloads behind opaque ids.
//
// Put is durable once it returns. Delete accepts a batch of ids, is idempotent
// and never fails because an id is missing.
type Store interface {
	Put(ctx context.Context, r io.Reader, contentType, name string) (uuid.UUID, error)
	Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *BlobInfo, error)
	Delete(ctx context.Context, ids ...uuid.UUID) error
}

// Lister pages through blobs created before cutoff in ascending id order,
// starting after the given id. The orphan sweep uses it to find candidates.
type Lister interface {
	ListCreatedBefore(ctx context.Context, cutoff time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// Pinger exposes the readiness check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Compact drops nil ids and duplicates while keeping order.
func Compact(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
