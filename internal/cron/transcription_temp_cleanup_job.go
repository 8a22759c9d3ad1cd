package cron

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/daybook-backend/internal/transcription"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
)

const defaultTempRetention = 6 * time.Hour

// TranscriptionTempCleanupJobParams wires the sweep of pipeline work dirs.
type TranscriptionTempCleanupJobParams struct {
	Logger    *logger.Logger
	TempDir   string
	Retention time.Duration
}

// NewTranscriptionTempCleanupJob removes pipeline work directories left behind
// by crashed or killed workers.
func NewTranscriptionTempCleanupJob(params TranscriptionTempCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	dir := params.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultTempRetention
	}
	return &transcriptionTempCleanupJob{
		logg:      params.Logger,
		dir:       dir,
		retention: retention,
		now:       time.Now,
	}, nil
}

type transcriptionTempCleanupJob struct {
	logg      *logger.Logger
	dir       string
	retention time.Duration
	now       func() time.Time
}

func (j *transcriptionTempCleanupJob) Name() string { return "transcription-temp-cleanup" }

func (j *transcriptionTempCleanupJob) Run(ctx context.Context) error {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read temp dir: %w", err)
	}
	cutoff := j.now().Add(-j.retention)
	var (
		removed int
		errs    error
	)
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), transcription.TempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// vanished between ReadDir and Info
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(j.dir, entry.Name())); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		removed++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"temp_dir":     j.dir,
		"cutoff":       cutoff,
		"dirs_removed": removed,
	})
	j.logg.Info(logCtx, "transcription temp cleanup complete")
	if errs != nil {
		return fmt.Errorf("remove temp dirs: %w", errs)
	}
	return nil
}
