package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/daybook-backend/pkg/enums"
)

// Day is the unit of work that owns a date's checklist recordings.
type Day struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID        `gorm:"column:tenant_id;type:uuid;not null;index"`
	UserID        uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	Date          time.Time        `gorm:"column:date;type:date;not null"`
	Transcription DayTranscription `gorm:"embedded;embeddedPrefix:transcription_"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// DayTranscription is the status sub-document that doubles as the day lock.
// RunID is minted on every successful acquisition and guards later transitions.
type DayTranscription struct {
	Status      enums.TranscriptionStatus `gorm:"column:status;type:text;not null;default:''"`
	RunID       *uuid.UUID                `gorm:"column:run_id;type:uuid"`
	RequestedAt *time.Time                `gorm:"column:requested_at"`
	StartedAt   *time.Time                `gorm:"column:started_at"`
	FinishedAt  *time.Time                `gorm:"column:finished_at"`
	Error       *string                   `gorm:"column:error"`
}

func (d *Day) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
