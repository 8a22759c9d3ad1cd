package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/daybook-backend/pkg/enums"
)

// Recording is one clip per (day, user, checklist field).
type Recording struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	DayID       uuid.UUID            `gorm:"column:day_id;type:uuid;not null;uniqueIndex:ux_recordings_day_user_field,priority:1"`
	UserID      uuid.UUID            `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_recordings_day_user_field,priority:2"`
	Field       enums.ChecklistField `gorm:"column:field;type:text;not null;uniqueIndex:ux_recordings_day_user_field,priority:3"`
	BlobID      *uuid.UUID           `gorm:"column:blob_id;type:uuid;index"`
	ContentType string               `gorm:"column:content_type;not null;default:''"`
	Text        *string              `gorm:"column:text"`
	Phonemes    *string              `gorm:"column:phonemes"`
	DurationMS  int64                `gorm:"column:duration_ms;not null;default:0"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// HasAudio reports whether a clip has been uploaded for the slot.
func (r *Recording) HasAudio() bool {
	return r != nil && r.BlobID != nil && *r.BlobID != uuid.Nil
}

func (r *Recording) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
