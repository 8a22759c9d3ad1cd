package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/internal/access"
	"github.com/angelmondragon/daybook-backend/internal/days"
	"github.com/angelmondragon/daybook-backend/pkg/db"
	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/daybook-backend/pkg/errors"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
	"github.com/angelmondragon/daybook-backend/pkg/storage"
)

type recordingRepository interface {
	UpsertByTriple(ctx context.Context, dayID, userID uuid.UUID, field enums.ChecklistField, patch Patch) (*models.Recording, error)
	FindByTriple(ctx context.Context, dayID, userID uuid.UUID, field enums.ChecklistField) (*models.Recording, error)
	FindByDayUser(ctx context.Context, dayID, userID uuid.UUID) ([]models.Recording, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type dayAuthorizer interface {
	AuthorizeDay(ctx context.Context, actor access.Actor, dayID uuid.UUID) (*days.Ownership, error)
}

type dayLock interface {
	IsLocked(ctx context.Context, dayID uuid.UUID) (bool, error)
}

// Service exposes recording mutations gated by the day lock.
type Service interface {
	Upload(ctx context.Context, actor access.Actor, input UploadInput) (*models.Recording, error)
	Delete(ctx context.Context, actor access.Actor, dayID, recordingID uuid.UUID) error
	List(ctx context.Context, actor access.Actor, dayID uuid.UUID) ([]models.Recording, error)
	OpenAudio(ctx context.Context, actor access.Actor, recordingID uuid.UUID) (io.ReadCloser, *storage.BlobInfo, error)
}

// UploadInput models one clip upload for a checklist slot.
type UploadInput struct {
	DayID      uuid.UUID
	Field      string
	FileName   string
	DurationMS int64
	Audio      io.Reader
}

// Limits bounds accepted uploads; zero values disable a check.
type Limits struct {
	MaxBytes      int64
	MaxDurationMS int64
}

// ServiceParams wires the recording service.
type ServiceParams struct {
	Repo   recordingRepository
	Blobs  storage.Store
	Authz  dayAuthorizer
	Lock   dayLock
	Limits Limits
	Logger *logger.Logger
}

type service struct {
	repo   recordingRepository
	blobs  storage.Store
	authz  dayAuthorizer
	lock   dayLock
	limits Limits
	logg   *logger.Logger
}

// NewService constructs a recording service backed by the provided collaborators.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("recording repository required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if params.Authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("day lock required")
	}
	return &service{
		repo:   params.Repo,
		blobs:  params.Blobs,
		authz:  params.Authz,
		lock:   params.Lock,
		limits: params.Limits,
		logg:   params.Logger,
	}, nil
}

// Upload stores the clip before pointing the recording at it, and only then
// removes the clip it replaced.
func (s *service) Upload(ctx context.Context, actor access.Actor, input UploadInput) (*models.Recording, error) {
	field, err := enums.ParseChecklistField(strings.TrimSpace(input.Field))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid checklist field").
			WithDetails(map[string]any{"field": input.Field})
	}
	if input.Audio == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "audio is required")
	}
	if input.DurationMS < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration_ms must not be negative")
	}
	if s.limits.MaxDurationMS > 0 && input.DurationMS > s.limits.MaxDurationMS {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duration_ms must be at most %d", s.limits.MaxDurationMS))
	}

	owner, err := s.authz.AuthorizeDay(ctx, actor, input.DayID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnlocked(ctx, input.DayID); err != nil {
		return nil, err
	}

	contentType, audio, err := sniffAudio(input.Audio)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read audio")
	}
	if audio == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "audio is empty")
	}
	if !isAllowedAudio(contentType) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported audio format").
			WithDetails(map[string]any{"content_type": contentType})
	}

	counter := &countingReader{r: audio}
	var body io.Reader = counter
	if s.limits.MaxBytes > 0 {
		body = io.LimitReader(counter, s.limits.MaxBytes+1)
	}

	name := strings.TrimSpace(input.FileName)
	if name == "" {
		name = string(field)
	}
	blobID, err := s.blobs.Put(ctx, body, contentType, name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store audio")
	}
	if s.limits.MaxBytes > 0 && counter.n > s.limits.MaxBytes {
		s.discardBlob(ctx, blobID)
		return nil, pkgerrors.New(pkgerrors.CodeTooLarge, fmt.Sprintf("audio must be at most %d bytes", s.limits.MaxBytes))
	}

	var previous *uuid.UUID
	prior, err := s.repo.FindByTriple(ctx, input.DayID, owner.UserID, field)
	switch {
	case err == nil:
		previous = prior.BlobID
	case !db.IsNotFound(err):
		s.discardBlob(ctx, blobID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recording")
	}

	rec, err := s.repo.UpsertByTriple(ctx, input.DayID, owner.UserID, field, Patch{
		BlobID:             &blobID,
		ContentType:        contentType,
		DurationMS:         input.DurationMS,
		ClearTranscription: true,
	})
	if err != nil {
		s.discardBlob(ctx, blobID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save recording")
	}

	if previous != nil && *previous != blobID {
		s.discardBlob(ctx, *previous)
	}
	return rec, nil
}

func (s *service) Delete(ctx context.Context, actor access.Actor, dayID, recordingID uuid.UUID) error {
	if _, err := s.authz.AuthorizeDay(ctx, actor, dayID); err != nil {
		return err
	}
	rec, err := s.repo.Get(ctx, recordingID)
	if db.IsNotFound(err) || (err == nil && rec.DayID != dayID) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "recording not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recording")
	}
	if err := s.ensureUnlocked(ctx, dayID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, rec.ID); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "recording not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete recording")
	}
	if rec.HasAudio() {
		s.discardBlob(ctx, *rec.BlobID)
	}
	return nil
}

func (s *service) List(ctx context.Context, actor access.Actor, dayID uuid.UUID) ([]models.Recording, error) {
	owner, err := s.authz.AuthorizeDay(ctx, actor, dayID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.FindByDayUser(ctx, dayID, owner.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recordings")
	}
	return rows, nil
}

func (s *service) OpenAudio(ctx context.Context, actor access.Actor, recordingID uuid.UUID) (io.ReadCloser, *storage.BlobInfo, error) {
	rec, err := s.repo.Get(ctx, recordingID)
	if db.IsNotFound(err) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "recording not found")
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recording")
	}
	if _, err := s.authz.AuthorizeDay(ctx, actor, rec.DayID); err != nil {
		return nil, nil, err
	}
	if !rec.HasAudio() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "recording has no audio")
	}

	rc, info, err := s.blobs.Open(ctx, *rec.BlobID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "audio not found")
	}
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open audio")
	}
	return rc, info, nil
}

func (s *service) ensureUnlocked(ctx context.Context, dayID uuid.UUID) error {
	locked, err := s.lock.IsLocked(ctx, dayID)
	if err != nil {
		return err
	}
	if locked {
		return pkgerrors.New(pkgerrors.CodeLocked, "day is being transcribed, retry later")
	}
	return nil
}

// discardBlob is best effort; leftovers are reclaimed by the orphan sweep.
func (s *service) discardBlob(ctx context.Context, id uuid.UUID) {
	if err := s.blobs.Delete(ctx, id); err != nil && s.logg != nil {
		logCtx := s.logg.WithField(ctx, "blob_id", id.String())
		s.logg.Warn(logCtx, fmt.Sprintf("discard blob failed: %v", err))
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
