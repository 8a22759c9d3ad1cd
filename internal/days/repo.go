package days

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/daybook-backend/internal/repo"
	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
)

// Ownership identifies who a day belongs to.
type Ownership struct {
	DayID    uuid.UUID
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// Repository exposes day persistence outside the lock protocol.
type Repository struct {
	repo.Base
}

// NewRepository constructs a day repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create persists a day row.
func (r *Repository) Create(ctx context.Context, day *models.Day) (*models.Day, error) {
	if err := r.DB(ctx).Create(day).Error; err != nil {
		return nil, err
	}
	return day, nil
}

// FindByID retrieves a day by ID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Day, error) {
	var day models.Day
	if err := r.DB(ctx).First(&day, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &day, nil
}

// ResolveOwnership returns the owning user and tenant of a day.
func (r *Repository) ResolveOwnership(ctx context.Context, id uuid.UUID) (*Ownership, error) {
	var day models.Day
	err := r.DB(ctx).
		Select("id", "user_id", "tenant_id").
		First(&day, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &Ownership{DayID: day.ID, UserID: day.UserID, TenantID: day.TenantID}, nil
}

// ListLive returns days holding a live transcription status, oldest request first.
func (r *Repository) ListLive(ctx context.Context) ([]models.Day, error) {
	var days []models.Day
	err := r.DB(ctx).
		Where("transcription_status IN ?", enums.LiveTranscriptionStatuses()).
		Order("transcription_requested_at ASC").
		Find(&days).Error
	if err != nil {
		return nil, err
	}
	return days, nil
}
