package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioBlob is the header row of a chunked blob stored in Postgres.
type AudioBlob struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ContentType string    `gorm:"column:content_type;not null"`
	FileName    string    `gorm:"column:file_name;not null"`
	Length      int64     `gorm:"column:length;not null"`
	ChunkSize   int       `gorm:"column:chunk_size;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// AudioBlobChunk holds the n-th slice of a blob payload.
type AudioBlobChunk struct {
	BlobID uuid.UUID `gorm:"column:blob_id;type:uuid;primaryKey"`
	N      int       `gorm:"column:n;primaryKey;autoIncrement:false"`
	Data   []byte    `gorm:"column:data;type:bytea;not null"`
}
