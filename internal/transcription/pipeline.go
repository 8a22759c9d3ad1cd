package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/storage"
)

// TempPrefix marks pipeline work directories so leftovers can be swept.
const TempPrefix = "daybook-transcribe-"

type transcriptWriter interface {
	SaveTranscription(ctx context.Context, id uuid.UUID, text, phonemes string) error
}

// Timeouts bounds each stage; zero disables the bound.
type Timeouts struct {
	Fetch     time.Duration
	Normalize time.Duration
	Extract   time.Duration
}

// PipelineParams wires the per-recording pipeline.
type PipelineParams struct {
	Blobs      storage.Store
	Recordings transcriptWriter
	Normalizer Normalizer
	Extractor  Extractor
	TempDir    string
	Timeouts   Timeouts
}

// Pipeline runs Fetch, Normalize, Extract and Persist for one recording.
type Pipeline struct {
	blobs      storage.Store
	recordings transcriptWriter
	normalizer Normalizer
	extractor  Extractor
	tempDir    string
	timeouts   Timeouts
}

func NewPipeline(params PipelineParams) (*Pipeline, error) {
	if params.Blobs == nil {
		return nil, errors.New("blob store required")
	}
	if params.Recordings == nil {
		return nil, errors.New("recording writer required")
	}
	if params.Normalizer == nil {
		return nil, errors.New("normalizer required")
	}
	if params.Extractor == nil {
		return nil, errors.New("extractor required")
	}
	return &Pipeline{
		blobs:      params.Blobs,
		recordings: params.Recordings,
		normalizer: params.Normalizer,
		extractor:  params.Extractor,
		tempDir:    params.TempDir,
		timeouts:   params.Timeouts,
	}, nil
}

// Process transcribes rec. A recording without audio is a successful no-op.
// On failure the recording keeps its previous results and a *StageError is returned.
func (p *Pipeline) Process(ctx context.Context, rec models.Recording) error {
	if !rec.HasAudio() {
		return nil
	}
	tag := func(se *StageError) *StageError {
		se.RecordingID = rec.ID
		se.Field = rec.Field
		return se
	}

	workDir, err := os.MkdirTemp(p.tempDir, TempPrefix+rec.ID.String()+"-")
	if err != nil {
		return tag(stageErr(StageFetch, fmt.Errorf("create work dir: %w", err)))
	}
	defer os.RemoveAll(workDir)

	sourcePath := filepath.Join(workDir, "source"+extensionFor(rec.ContentType))
	if err := p.fetch(ctx, *rec.BlobID, sourcePath); err != nil {
		return tag(stageErr(StageFetch, err))
	}

	wavPath := filepath.Join(workDir, "normalized.wav")
	if err := p.normalize(ctx, sourcePath, wavPath); err != nil {
		return tag(stageErr(StageNormalize, err))
	}

	res, err := p.extract(ctx, wavPath)
	if err != nil {
		return tag(stageErr(StageExtract, err))
	}

	if err := p.recordings.SaveTranscription(ctx, rec.ID, res.Text, res.Phonemes); err != nil {
		return tag(stageErr(StagePersist, err))
	}
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, blobID uuid.UUID, dst string) error {
	ctx, cancel := withTimeout(ctx, p.timeouts.Fetch)
	defer cancel()

	rc, _, err := p.blobs.Open(ctx, blobID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("audio blob %s is missing: %w", blobID, err)
	}
	if err != nil {
		return fmt.Errorf("open audio blob: %w", err)
	}
	defer rc.Close()

	return writeFile(dst, func(w io.Writer) error {
		_, err := io.Copy(w, rc)
		return err
	})
}

func (p *Pipeline) normalize(ctx context.Context, src, dst string) error {
	ctx, cancel := withTimeout(ctx, p.timeouts.Normalize)
	defer cancel()
	return writeFile(dst, func(w io.Writer) error {
		return p.normalizer.Normalize(ctx, src, w)
	})
}

func (p *Pipeline) extract(ctx context.Context, wavPath string) (Result, error) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Extract)
	defer cancel()
	return p.extractor.Extract(ctx, wavPath)
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg", "application/ogg":
		return ".ogg"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
