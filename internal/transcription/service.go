package transcription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/internal/access"
	"github.com/angelmondragon/daybook-backend/internal/days"
	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/daybook-backend/pkg/errors"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
	"github.com/angelmondragon/daybook-backend/pkg/metrics"
)

const statusAbsent = "absent"

type dayAuthorizer interface {
	AuthorizeDay(ctx context.Context, actor access.Actor, dayID uuid.UUID) (*days.Ownership, error)
}

type dayLock interface {
	TryAcquire(ctx context.Context, dayID uuid.UUID) (days.Acquisition, error)
	Status(ctx context.Context, dayID uuid.UUID) (*models.DayTranscription, error)
	IsStale(t *models.DayTranscription, now time.Time) bool
}

type liveDayLister interface {
	ListLive(ctx context.Context) ([]models.Day, error)
}

type enqueuer interface {
	Enqueue(job Job)
}

// Service is the start/poll surface for day transcription.
type Service interface {
	Start(ctx context.Context, actor access.Actor, dayID uuid.UUID, authToken string) (*StartResult, error)
	Status(ctx context.Context, actor access.Actor, dayID uuid.UUID) (*StatusView, error)
	Recover(ctx context.Context) (int, error)
}

// StartResult is returned when a run was accepted.
type StartResult struct {
	Accepted bool      `json:"accepted"`
	Status   string    `json:"status"`
	RunID    uuid.UUID `json:"run_id"`
}

// StatusView is the polled status of a day.
type StatusView struct {
	DayID       uuid.UUID  `json:"day_id"`
	Status      string     `json:"status"`
	RequestedAt *time.Time `json:"requested_at"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	Error       *string    `json:"error"`
	Stale       bool       `json:"stale"`
}

// ServiceParams wires the transcription service.
type ServiceParams struct {
	Authz   dayAuthorizer
	Lock    dayLock
	Days    liveDayLister
	Queue   enqueuer
	Logger  *logger.Logger
	Metrics *metrics.TranscriptionMetrics
}

type service struct {
	authz   dayAuthorizer
	lock    dayLock
	days    liveDayLister
	queue   enqueuer
	logg    *logger.Logger
	metrics *metrics.TranscriptionMetrics
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Authz == nil {
		return nil, errors.New("authorizer required")
	}
	if params.Lock == nil {
		return nil, errors.New("day lock required")
	}
	if params.Days == nil {
		return nil, errors.New("day repository required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue required")
	}
	return &service{
		authz:   params.Authz,
		lock:    params.Lock,
		days:    params.Days,
		queue:   params.Queue,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

// Start acquires the day lock and enqueues a run. A live, non-stale run
// yields CONFLICT.
func (s *service) Start(ctx context.Context, actor access.Actor, dayID uuid.UUID, authToken string) (*StartResult, error) {
	owner, err := s.authz.AuthorizeDay(ctx, actor, dayID)
	if err != nil {
		return nil, err
	}

	acq, err := s.lock.TryAcquire(ctx, dayID)
	if err != nil {
		return nil, err
	}
	if !acq.Acquired {
		s.metrics.IncLockConflict()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "already transcribing").
			WithDetails(map[string]any{"status": statusName(acq.Status)})
	}

	s.queue.Enqueue(Job{
		DayID:      dayID,
		UserID:     owner.UserID,
		RunID:      acq.RunID,
		AuthToken:  authToken,
		EnqueuedAt: s.now().UTC(),
	})
	if s.logg != nil {
		logCtx := s.logg.WithRunID(s.logg.WithDayID(ctx, dayID.String()), acq.RunID.String())
		s.logg.Info(logCtx, "transcription queued")
	}
	return &StartResult{Accepted: true, Status: statusName(acq.Status), RunID: acq.RunID}, nil
}

func (s *service) Status(ctx context.Context, actor access.Actor, dayID uuid.UUID) (*StatusView, error) {
	if _, err := s.authz.AuthorizeDay(ctx, actor, dayID); err != nil {
		return nil, err
	}
	t, err := s.lock.Status(ctx, dayID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		DayID:       dayID,
		Status:      statusName(t.Status),
		RequestedAt: t.RequestedAt,
		StartedAt:   t.StartedAt,
		FinishedAt:  t.FinishedAt,
		Error:       t.Error,
		Stale:       s.lock.IsStale(t, s.now()),
	}, nil
}

// Recover re-enqueues runs lost with a previous process. Queued days keep their
// run id; a processing day is only taken over once its lock is stale.
func (s *service) Recover(ctx context.Context) (int, error) {
	live, err := s.days.ListLive(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list live days")
	}

	recovered := 0
	for _, day := range live {
		job := Job{DayID: day.ID, UserID: day.UserID, EnqueuedAt: s.now().UTC()}
		switch day.Transcription.Status {
		case enums.TranscriptionStatusQueued:
			if day.Transcription.RunID == nil {
				continue
			}
			job.RunID = *day.Transcription.RunID
		case enums.TranscriptionStatusProcessing:
			acq, err := s.lock.TryAcquire(ctx, day.ID)
			if err != nil {
				return recovered, err
			}
			if !acq.Acquired {
				continue
			}
			job.RunID = acq.RunID
		default:
			continue
		}
		s.queue.Enqueue(job)
		recovered++
	}

	if s.logg != nil && recovered > 0 {
		s.logg.Info(s.logg.WithField(ctx, "recovered", recovered), "re-enqueued transcription runs")
	}
	return recovered, nil
}

func statusName(status enums.TranscriptionStatus) string {
	if status == enums.TranscriptionStatusAbsent {
		return statusAbsent
	}
	return status.String()
}
