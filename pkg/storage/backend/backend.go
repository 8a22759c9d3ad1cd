// Package backend picks the blob store configured for the deployment.
package backend

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/daybook-backend/pkg/config"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
	"github.com/angelmondragon/daybook-backend/pkg/storage"
	"github.com/angelmondragon/daybook-backend/pkg/storage/dbblob"
	"github.com/angelmondragon/daybook-backend/pkg/storage/objectstore"
)

// Blobs is a store the orphan sweep can page through.
type Blobs interface {
	storage.Store
	storage.Lister
}

// Open returns the blob store for cfg.Storage. The returned pinger is nil
// for the database backend, whose health is covered by the db check.
func Open(ctx context.Context, cfg *config.Config, db *gorm.DB, logg *logger.Logger) (Blobs, storage.Pinger, error) {
	if cfg == nil {
		return nil, nil, errors.New("config required")
	}
	if cfg.Storage.UsesObjectStore() {
		store, err := objectstore.New(ctx, cfg.S3, logg)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
	if db == nil {
		return nil, nil, errors.New("database required for the db storage backend")
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "chunk_size", cfg.Storage.ChunkSize), "database blob store ready")
	}
	return dbblob.New(db, cfg.Storage.ChunkSize), nil, nil
}
