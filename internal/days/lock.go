package days

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/daybook-backend/internal/repo"
	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/daybook-backend/pkg/errors"
)

// DefaultStaleAfter is how long a live status may sit before it can be reclaimed.
const DefaultStaleAfter = 30 * time.Minute

const maxErrorLength = 2000

var epoch = time.Unix(0, 0).UTC()

// Acquisition reports the outcome of TryAcquire. RunID is set only when Acquired.
type Acquisition struct {
	Acquired bool
	RunID    uuid.UUID
	Status   enums.TranscriptionStatus
}

// Lock implements the day transcription state machine on the days table.
//
// Every transition is a single conditional UPDATE. TryAcquire mints a run id
// and the later transitions only apply while that run id still owns a live
// status, so duplicate signals and runs that lost a stale reclaim are no-ops.
type Lock struct {
	repo.Base
	staleAfter time.Duration
	now        func() time.Time
}

// NewLock builds a lock over db; a non-positive staleAfter uses DefaultStaleAfter.
func NewLock(db *gorm.DB, staleAfter time.Duration) *Lock {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Lock{Base: repo.NewBase(db), staleAfter: staleAfter, now: time.Now}
}

// StaleAfter returns the configured staleness threshold.
func (l *Lock) StaleAfter() time.Duration {
	return l.staleAfter
}

// TryAcquire moves the day to queued when it is idle, terminal or stale.
func (l *Lock) TryAcquire(ctx context.Context, dayID uuid.UUID) (Acquisition, error) {
	now := l.now().UTC()
	cutoff := now.Add(-l.staleAfter)
	runID := uuid.New()

	res := l.DB(ctx).
		Model(&models.Day{}).
		Where("id = ?", dayID).
		Where(`(transcription_status IS NULL
			OR transcription_status NOT IN ?
			OR (transcription_status = ? AND COALESCE(transcription_requested_at, ?) < ?)
			OR (transcription_status = ? AND COALESCE(transcription_started_at, transcription_requested_at, ?) < ?))`,
			enums.LiveTranscriptionStatuses(),
			enums.TranscriptionStatusQueued, epoch, cutoff,
			enums.TranscriptionStatusProcessing, epoch, cutoff,
		).
		Updates(map[string]any{
			"transcription_status":       enums.TranscriptionStatusQueued,
			"transcription_run_id":       runID,
			"transcription_requested_at": now,
			"transcription_started_at":   nil,
			"transcription_finished_at":  nil,
			"transcription_error":        nil,
		})
	acquired, err := repo.Applied(res)
	if err != nil {
		return Acquisition{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire day lock")
	}
	if acquired {
		return Acquisition{Acquired: true, RunID: runID, Status: enums.TranscriptionStatusQueued}, nil
	}

	current, err := l.Status(ctx, dayID)
	if err != nil {
		return Acquisition{}, err
	}
	return Acquisition{Acquired: false, Status: current.Status}, nil
}

// MarkProcessing moves a queued run to processing. It reports false when the
// run no longer owns the day.
func (l *Lock) MarkProcessing(ctx context.Context, dayID, runID uuid.UUID) (bool, error) {
	now := l.now().UTC()
	res := l.DB(ctx).
		Model(&models.Day{}).
		Where("id = ? AND transcription_run_id = ? AND transcription_status = ?", dayID, runID, enums.TranscriptionStatusQueued).
		Updates(map[string]any{
			"transcription_status":     enums.TranscriptionStatusProcessing,
			"transcription_started_at": now,
		})
	ok, err := repo.Applied(res)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark day processing")
	}
	return ok, nil
}

// MarkDone finishes the run successfully.
func (l *Lock) MarkDone(ctx context.Context, dayID, runID uuid.UUID) (bool, error) {
	return l.finish(ctx, dayID, runID, enums.TranscriptionStatusDone, nil)
}

// MarkError finishes the run with a failure message.
func (l *Lock) MarkError(ctx context.Context, dayID, runID uuid.UUID, message string) (bool, error) {
	msg := truncate(message, maxErrorLength)
	return l.finish(ctx, dayID, runID, enums.TranscriptionStatusError, &msg)
}

func (l *Lock) finish(ctx context.Context, dayID, runID uuid.UUID, status enums.TranscriptionStatus, message *string) (bool, error) {
	now := l.now().UTC()
	res := l.DB(ctx).
		Model(&models.Day{}).
		Where("id = ? AND transcription_run_id = ? AND transcription_status IN ?", dayID, runID, enums.LiveTranscriptionStatuses()).
		Updates(map[string]any{
			"transcription_status":      status,
			"transcription_finished_at": now,
			"transcription_error":       message,
		})
	ok, err := repo.Applied(res)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("mark day %s", status))
	}
	return ok, nil
}

// Status reads the transcription sub-document of a day.
func (l *Lock) Status(ctx context.Context, dayID uuid.UUID) (*models.DayTranscription, error) {
	var day models.Day
	err := l.DB(ctx).
		Select("id", "transcription_status", "transcription_run_id", "transcription_requested_at",
			"transcription_started_at", "transcription_finished_at", "transcription_error").
		First(&day, "id = ?", dayID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "day not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load day status")
	}
	return &day.Transcription, nil
}

// IsLocked reports whether recordings of the day are frozen by a live run.
func (l *Lock) IsLocked(ctx context.Context, dayID uuid.UUID) (bool, error) {
	status, err := l.Status(ctx, dayID)
	if err != nil {
		return false, err
	}
	return status.Status.IsLive(), nil
}

// IsStale reports whether a live status is old enough to be reclaimed at now.
func (l *Lock) IsStale(t *models.DayTranscription, now time.Time) bool {
	if t == nil || !t.Status.IsLive() {
		return false
	}
	ref := t.RequestedAt
	if t.Status == enums.TranscriptionStatusProcessing && t.StartedAt != nil {
		ref = t.StartedAt
	}
	if ref == nil {
		return true
	}
	return ref.Before(now.Add(-l.staleAfter))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
