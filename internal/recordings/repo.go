package recordings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/daybook-backend/internal/repo"
	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
)

// Patch carries the columns written by UpsertByTriple. ClearTranscription
// resets text and phonemes on an existing row.
type Patch struct {
	BlobID             *uuid.UUID
	ContentType        string
	DurationMS         int64
	ClearTranscription bool
}

// Repository exposes recording persistence operations.
type Repository struct {
	repo.Base
}

// NewRepository constructs a recording repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// UpsertByTriple inserts the recording for (day, user, field) or updates the
// existing row in the same statement.
func (r *Repository) UpsertByTriple(ctx context.Context, dayID, userID uuid.UUID, field enums.ChecklistField, patch Patch) (*models.Recording, error) {
	row := models.Recording{
		ID:          uuid.New(),
		DayID:       dayID,
		UserID:      userID,
		Field:       field,
		BlobID:      patch.BlobID,
		ContentType: patch.ContentType,
		DurationMS:  patch.DurationMS,
	}

	updates := []string{"blob_id", "content_type", "duration_ms", "updated_at"}
	if patch.ClearTranscription {
		updates = append(updates, "text", "phonemes")
	}

	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day_id"}, {Name: "user_id"}, {Name: "field"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.FindByTriple(ctx, dayID, userID, field)
}

// FindByTriple retrieves the recording of one checklist slot.
func (r *Repository) FindByTriple(ctx context.Context, dayID, userID uuid.UUID, field enums.ChecklistField) (*models.Recording, error) {
	var rec models.Recording
	err := r.DB(ctx).
		Where("day_id = ? AND user_id = ? AND field = ?", dayID, userID, field).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByDayUser lists the recordings of a day in a stable order.
func (r *Repository) FindByDayUser(ctx context.Context, dayID, userID uuid.UUID) ([]models.Recording, error) {
	var rows []models.Recording
	err := r.DB(ctx).
		Where("day_id = ? AND user_id = ?", dayID, userID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Get retrieves a recording by ID and returns gorm.ErrRecordNotFound when absent.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	var rec models.Recording
	if err := r.DB(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes the row. Blob cleanup is the caller's job.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return repo.RequireRow(r.DB(ctx).Where("id = ?", id).Delete(&models.Recording{}))
}

// SaveTranscription writes the extractor output onto a recording.
func (r *Repository) SaveTranscription(ctx context.Context, id uuid.UUID, text, phonemes string) error {
	return repo.RequireRow(r.DB(ctx).
		Model(&models.Recording{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"text":       text,
			"phonemes":   phonemes,
			"updated_at": time.Now().UTC(),
		}))
}

// ReferencedBlobIDs returns the subset of ids still pointed at by a recording.
func (r *Repository) ReferencedBlobIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	out := make(map[uuid.UUID]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var referenced []uuid.UUID
	err := r.DB(ctx).
		Model(&models.Recording{}).
		Where("blob_id IN ?", ids).
		Distinct().
		Pluck("blob_id", &referenced).Error
	if err != nil {
		return nil, err
	}
	for _, id := range referenced {
		out[id] = struct{}{}
	}
	return out, nil
}
