package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/daybook-backend/api/controllers"
	"github.com/angelmondragon/daybook-backend/pkg/config"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
)

const (
	shutdownTimeout   = 20 * time.Second
	readHeaderTimeout = 10 * time.Second
)

type worker interface {
	Run(ctx context.Context) error
}

type recoverer interface {
	Recover(ctx context.Context) (int, error)
}

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Handler  http.Handler
	Worker   worker
	Recovery recoverer
	Checks   []controllers.ReadinessCheck
	// Listener overrides the TCP listener; used by tests.
	Listener net.Listener
}

// Service runs the HTTP server and the transcription worker side by side.
// The queue is in-process, so both must live in the same binary.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	handler  http.Handler
	worker   worker
	recovery recoverer
	checks   []controllers.ReadinessCheck
	listener net.Listener
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Handler == nil {
		return nil, errors.New("http handler is required")
	}
	if params.Worker == nil {
		return nil, errors.New("transcription worker is required")
	}
	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		handler:  params.Handler,
		worker:   params.Worker,
		recovery: params.Recovery,
		checks:   params.Checks,
		listener: params.Listener,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, check := range s.checks {
		if check.Pinger == nil {
			continue
		}
		if err := check.Pinger.Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", check.Name), err)
			return fmt.Errorf("%s ping failed: %w", check.Name, err)
		}
	}
	s.logg.Info(ctx, "all api dependencies are ready")
	return nil
}

func (s *Service) addr() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = s.cfg.App.Port
	}
	return ":" + port
}

// Run blocks until ctx is cancelled or either half fails. Cancellation is a
// clean stop and returns nil.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              s.addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.worker.Run(gctx)
	})

	if s.recovery != nil && s.cfg.Transcription.RecoverOnStart {
		requeued, err := s.recovery.Recover(gctx)
		if err != nil {
			s.logg.Error(gctx, "transcription recovery failed", err)
		} else if requeued > 0 {
			s.logg.Info(s.logg.WithField(gctx, "requeued", requeued), "requeued queued days")
		}
	}

	g.Go(func() error {
		s.logg.Info(s.logg.WithField(gctx, "addr", server.Addr), "starting api server")
		var err error
		if s.listener != nil {
			err = server.Serve(s.listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
