package controllers

import (
	"net/http"

	"github.com/angelmondragon/daybook-backend/api/middleware"
	"github.com/angelmondragon/daybook-backend/api/responses"
	"github.com/angelmondragon/daybook-backend/api/validators"
	"github.com/angelmondragon/daybook-backend/internal/transcription"
	pkgerrors "github.com/angelmondragon/daybook-backend/pkg/errors"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
)

// StartTranscription queues a run for the day and answers 202, or 409 when a
// run is already live.
func StartTranscription(svc transcription.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transcription service unavailable"))
			return
		}
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

		result, err := svc.Start(r.Context(), actor, dayID, middleware.BearerTokenFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

func TranscriptionStatus(svc transcription.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transcription service unavailable"))
			return
		}
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

		view, err := svc.Status(r.Context(), actor, dayID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, view)
	}
}
