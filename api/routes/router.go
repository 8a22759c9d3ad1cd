package routes

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/daybook-backend/api/controllers"
	"github.com/angelmondragon/daybook-backend/api/middleware"
	"github.com/angelmondragon/daybook-backend/internal/recordings"
	"github.com/angelmondragon/daybook-backend/internal/transcription"
	"github.com/angelmondragon/daybook-backend/pkg/config"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	Gatherer      prometheus.Gatherer
	Transcription transcription.Service
	Recordings    recordings.Service
	Checks        []controllers.ReadinessCheck
}

func NewRouter(params RouterParams) (http.Handler, error) {
	if params.Config == nil {
		return nil, errors.New("config required")
	}
	if params.Transcription == nil {
		return nil, errors.New("transcription service required")
	}
	if params.Recordings == nil {
		return nil, errors.New("recordings service required")
	}
	cfg, logg := params.Config, params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Checks...))
	})

	if params.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Gatherer, promhttp.HandlerOpts{}))
	}

	limits := controllers.UploadLimits{MaxBytes: cfg.Media.MaxUploadBytes()}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/days/{dayId}", func(r chi.Router) {
			r.Post("/transcription", controllers.StartTranscription(params.Transcription, logg))
			r.Get("/transcription", controllers.TranscriptionStatus(params.Transcription, logg))

			r.Route("/recordings", func(r chi.Router) {
				r.Get("/", controllers.ListRecordings(params.Recordings, logg))
				// same segment, keyed per method
				r.Put("/{field}", controllers.RecordingUpload(params.Recordings, limits, logg))
				r.Delete("/{recordingId}", controllers.DeleteRecording(params.Recordings, logg))
			})
		})

		r.Get("/recordings/{recordingId}/audio", controllers.RecordingAudio(params.Recordings, logg))
	})

	return r, nil
}
