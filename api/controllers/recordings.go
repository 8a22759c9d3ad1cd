package controllers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/api/middleware"
	"github.com/angelmondragon/daybook-backend/api/responses"
	"github.com/angelmondragon/daybook-backend/api/validators"
	"github.com/angelmondragon/daybook-backend/internal/recordings"
	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/daybook-backend/pkg/errors"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
)

const (
	// multipart parts beyond this are spooled to temp files by net/http
	multipartMemory = 8 << 20
	// headroom for the multipart envelope and the duration field
	multipartOverhead = 64 << 10
	maxFileNameLength = 128
	// seconds a client should wait before editing a day under transcription
	lockedRetryAfter = "5"
)

// UploadLimits bounds the request body accepted by RecordingUpload.
type UploadLimits struct {
	MaxBytes int64
}

type recordingResponse struct {
	ID          uuid.UUID            `json:"id"`
	DayID       uuid.UUID            `json:"day_id"`
	UserID      uuid.UUID            `json:"user_id"`
	Field       enums.ChecklistField `json:"field"`
	HasAudio    bool                 `json:"has_audio"`
	ContentType string               `json:"content_type,omitempty"`
	DurationMS  int64                `json:"duration_ms"`
	Text        *string              `json:"text"`
	Phonemes    *string              `json:"phonemes"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

func toRecordingResponse(rec models.Recording) recordingResponse {
	return recordingResponse{
		ID:          rec.ID,
		DayID:       rec.DayID,
		UserID:      rec.UserID,
		Field:       rec.Field,
		HasAudio:    rec.HasAudio(),
		ContentType: rec.ContentType,
		DurationMS:  rec.DurationMS,
		Text:        rec.Text,
		Phonemes:    rec.Phonemes,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

type uploadForm struct {
	Field      string `form:"field" validate:"required,checklist_field"`
	DurationMS int64  `form:"duration_ms" validate:"min=0"`
}

func ListRecordings(svc recordings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
			return
		}
		dayID, err := validators.PathUUID(r, "dayId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), actor, dayID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]recordingResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, toRecordingResponse(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// RecordingUpload replaces the clip of one checklist field. The body is a
// multipart form carrying an "audio" file part and an optional "duration_ms".
func RecordingUpload(svc recordings.Service, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
			return
		}
		dayID, err := validators.PathUUID(r, "dayId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if limits.MaxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limits.MaxBytes+multipartOverhead)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			responses.WriteError(r.Context(), logg, w, multipartError(err, limits.MaxBytes))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		duration, err := validators.ParseInt64(r.FormValue("duration_ms"), "duration_ms", 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		form := uploadForm{Field: validators.SanitizeString(chiParam(r, "field"), 64), DurationMS: duration}
		if err := validators.ValidateStruct(&form); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "audio file part is required").
				WithDetails(map[string]any{"field": "audio"}))
			return
		}
		defer file.Close()

		rec, err := svc.Upload(r.Context(), actor, recordings.UploadInput{
			DayID:      dayID,
			Field:      form.Field,
			FileName:   validators.SanitizeFileName(header.Filename, maxFileNameLength),
			DurationMS: form.DurationMS,
			Audio:      file,
		})
		if err != nil {
			writeMutationError(r, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRecordingResponse(*rec))
	}
}

func DeleteRecording(svc recordings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
			return
		}
		dayID, err := validators.PathUUID(r, "dayId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		recordingID, err := validators.PathUUID(r, "recordingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), actor, dayID, recordingID); err != nil {
			writeMutationError(r, logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// RecordingAudio streams the stored clip back with its sniffed content type.
func RecordingAudio(svc recordings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor"))
			return
		}
		recordingID, err := validators.PathUUID(r, "recordingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body, info, err := svc.OpenAudio(r.Context(), actor, recordingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		defer body.Close()

		contentType := info.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		if info.Length > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(info.Length, 10))
		}
		if info.FileName != "" {
			w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": info.FileName}))
		}
		w.Header().Set("Cache-Control", "private, max-age=0")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil && logg != nil {
			// headers are gone; all that is left is to log
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "audio stream interrupted")
		}
	}
}

func multipartError(err error, maxBytes int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.New(pkgerrors.CodeTooLarge, fmt.Sprintf("audio must be at most %d bytes", maxBytes))
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
}

// writeMutationError hints a retry when the day is locked by a run.
func writeMutationError(r *http.Request, logg *logger.Logger, w http.ResponseWriter, err error) {
	if pkgerrors.IsCode(err, pkgerrors.CodeLocked) {
		w.Header().Set("Retry-After", lockedRetryAfter)
	}
	responses.WriteError(r.Context(), logg, w, err)
}
