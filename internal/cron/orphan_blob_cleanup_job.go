package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/pkg/logger"
	"github.com/angelmondragon/daybook-backend/pkg/storage"
)

const (
	defaultOrphanGrace     = 24 * time.Hour
	defaultOrphanBatchSize = 200
)

// OrphanBlobCleanupJobParams wires the orphan sweep.
type OrphanBlobCleanupJobParams struct {
	Logger     *logger.Logger
	Blobs      orphanBlobStore
	Recordings blobReferenceChecker
	Grace      time.Duration
	BatchSize  int
}

type orphanBlobStore interface {
	storage.Lister
	Delete(ctx context.Context, ids ...uuid.UUID) error
}

type blobReferenceChecker interface {
	ReferencedBlobIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error)
}

// NewOrphanBlobCleanupJob builds the job that removes blobs no recording
// points at. Blobs younger than the grace period are left alone so uploads
// that have stored audio but not yet written their row are never swept.
func NewOrphanBlobCleanupJob(params OrphanBlobCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if params.Recordings == nil {
		return nil, fmt.Errorf("recordings repository required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultOrphanGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOrphanBatchSize
	}
	return &orphanBlobCleanupJob{
		logg:       params.Logger,
		blobs:      params.Blobs,
		recordings: params.Recordings,
		grace:      grace,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

type orphanBlobCleanupJob struct {
	logg       *logger.Logger
	blobs      orphanBlobStore
	recordings blobReferenceChecker
	grace      time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *orphanBlobCleanupJob) Name() string { return "orphan-blob-cleanup" }

func (j *orphanBlobCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	var (
		scanned int
		deleted int
		after   uuid.UUID
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := j.blobs.ListCreatedBefore(ctx, cutoff, after, j.batchSize)
		if err != nil {
			return fmt.Errorf("list blobs: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		scanned += len(ids)
		referenced, err := j.recordings.ReferencedBlobIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("check blob references: %w", err)
		}
		orphans := make([]uuid.UUID, 0, len(ids))
		for _, id := range ids {
			if _, ok := referenced[id]; !ok {
				orphans = append(orphans, id)
			}
		}
		if len(orphans) > 0 {
			if err := j.blobs.Delete(ctx, orphans...); err != nil {
				return fmt.Errorf("delete orphan blobs: %w", err)
			}
			deleted += len(orphans)
		}
		if len(ids) < j.batchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":        cutoff,
		"blobs_scanned": scanned,
		"blobs_deleted": deleted,
	})
	j.logg.Info(logCtx, "orphan blob cleanup complete")
	return nil
}
