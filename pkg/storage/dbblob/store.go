// Package dbblob stores audio blobs as fixed-size chunks in Postgres, the way
// GridFS splits files into a header document plus ordered chunk documents.
package dbblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/storage"
)

// DefaultChunkSize matches the GridFS default of 255 KiB.
const DefaultChunkSize = 255 * 1024

type Store struct {
	db        *gorm.DB
	chunkSize int
	now       func() time.Time
}

// New builds a chunked store; non-positive chunk sizes fall back to DefaultChunkSize.
func New(db *gorm.DB, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Store{db: db, chunkSize: chunkSize, now: time.Now}
}

var _ storage.Store = (*Store)(nil)
var _ storage.Lister = (*Store)(nil)

// Put writes every chunk and the header row in one transaction.
func (s *Store) Put(ctx context.Context, r io.Reader, contentType, name string) (uuid.UUID, error) {
	if r == nil {
		return uuid.Nil, errors.New("blob reader is required")
	}
	id := uuid.New()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		buf := make([]byte, s.chunkSize)
		var length int64
		for n := 0; ; n++ {
			read, readErr := io.ReadFull(r, buf)
			if read > 0 {
				chunk := models.AudioBlobChunk{BlobID: id, N: n, Data: append([]byte(nil), buf[:read]...)}
				if err := tx.Create(&chunk).Error; err != nil {
					return fmt.Errorf("write chunk %d: %w", n, err)
				}
				length += int64(read)
			}
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			if readErr != nil {
				return fmt.Errorf("read blob payload: %w", readErr)
			}
		}
		header := models.AudioBlob{
			ID:          id,
			ContentType: contentType,
			FileName:    name,
			Length:      length,
			ChunkSize:   s.chunkSize,
			CreatedAt:   s.now().UTC(),
		}
		return tx.Create(&header).Error
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Open returns a reader that loads chunks lazily in order.
func (s *Store) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *storage.BlobInfo, error) {
	var header models.AudioBlob
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load blob header: %w", err)
	}

	info := &storage.BlobInfo{
		ID:          header.ID,
		ContentType: header.ContentType,
		FileName:    header.FileName,
		Length:      header.Length,
		CreatedAt:   header.CreatedAt,
	}
	chunks := 0
	if header.Length > 0 && header.ChunkSize > 0 {
		chunks = int((header.Length + int64(header.ChunkSize) - 1) / int64(header.ChunkSize))
	}
	return &chunkReader{ctx: ctx, db: s.db, blobID: id, total: chunks}, info, nil
}

// Delete removes headers and any chunks for ids, including chunks left by an interrupted Put.
func (s *Store) Delete(ctx context.Context, ids ...uuid.UUID) error {
	ids = storage.Compact(ids)
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("blob_id IN ?", ids).Delete(&models.AudioBlobChunk{}).Error; err != nil {
			return fmt.Errorf("delete blob chunks: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.AudioBlob{}).Error; err != nil {
			return fmt.Errorf("delete blob headers: %w", err)
		}
		return nil
	})
}

func (s *Store) ListCreatedBefore(ctx context.Context, cutoff time.Time, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.AudioBlob{}).
		Where("created_at < ?", cutoff.UTC())
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	var ids []uuid.UUID
	if err := query.Order("id ASC").Limit(limit).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return ids, nil
}

type chunkReader struct {
	ctx    context.Context
	db     *gorm.DB
	blobID uuid.UUID
	total  int
	next   int
	buf    []byte
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errors.New("read on closed blob reader")
	}
	for len(r.buf) == 0 {
		if r.next >= r.total {
			return 0, io.EOF
		}
		if err := r.load(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) load() error {
	var chunk models.AudioBlobChunk
	err := r.db.WithContext(r.ctx).
		Where("blob_id = ? AND n = ?", r.blobID, r.next).
		First(&chunk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("blob %s chunk %d missing: %w", r.blobID, r.next, io.ErrUnexpectedEOF)
	}
	if err != nil {
		return fmt.Errorf("load blob chunk %d: %w", r.next, err)
	}
	r.buf = chunk.Data
	r.next++
	return nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
