package transcription

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/daybook-backend/internal/days"
	"github.com/angelmondragon/daybook-backend/internal/recordings"
	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
	"github.com/angelmondragon/daybook-backend/pkg/storage/dbblob"
)

// copyNormalizer passes audio through untouched.
type copyNormalizer struct{}

func (copyNormalizer) Normalize(_ context.Context, inputPath string, out io.Writer) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(out, f)
	return err
}

// scriptedExtractor echoes the audio back as text and fails or panics on markers.
type scriptedExtractor struct{}

func (scriptedExtractor) Extract(_ context.Context, wavPath string) (Result, error) {
	raw, err := os.ReadFile(wavPath)
	if err != nil {
		return Result{}, err
	}
	content := string(raw)
	switch {
	case strings.Contains(content, "panic"):
		panic("extractor exploded")
	case strings.Contains(content, "bad"):
		return Result{}, &processError{
			name:    "phonemize",
			failure: &ProcessFailure{ExitCode: 1, Stderr: "unsupported audio"},
			cause:   errors.New("process exited abnormally"),
		}
	}
	return Result{Text: "text:" + content, Phonemes: "ph:" + content}, nil
}

type testEnv struct {
	conn       *gorm.DB
	lock       *days.Lock
	days       *days.Repository
	recordings *recordings.Repository
	blobs      *dbblob.Store
	pipeline   *Pipeline
	day        *models.Day
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:transcription_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.Day{}, &models.Recording{}, &models.AudioBlob{}, &models.AudioBlobChunk{}))

	env := &testEnv{
		conn:       conn,
		lock:       days.NewLock(conn, 30*time.Minute),
		days:       days.NewRepository(conn),
		recordings: recordings.NewRepository(conn),
		blobs:      dbblob.New(conn, 8),
	}
	env.pipeline, err = NewPipeline(PipelineParams{
		Blobs:      env.blobs,
		Recordings: env.recordings,
		Normalizer: copyNormalizer{},
		Extractor:  scriptedExtractor{},
		TempDir:    t.TempDir(),
		Timeouts:   Timeouts{Fetch: time.Second, Normalize: time.Second, Extract: time.Second},
	})
	require.NoError(t, err)
	env.day = env.newDay(t)
	return env
}

func (e *testEnv) newDay(t *testing.T) *models.Day {
	t.Helper()
	day, err := e.days.Create(context.Background(), &models.Day{
		TenantID: uuid.New(),
		UserID:   uuid.New(),
		Date:     time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return day
}

// addRecording creates a recording for the day; nil audio leaves it without a blob.
func (e *testEnv) addRecording(t *testing.T, day *models.Day, field enums.ChecklistField, audio []byte) *models.Recording {
	t.Helper()
	ctx := context.Background()
	patch := recordings.Patch{ContentType: "audio/wav", DurationMS: 1000}
	if audio != nil {
		id, err := e.blobs.Put(ctx, bytes.NewReader(audio), "audio/wav", string(field)+".wav")
		require.NoError(t, err)
		patch.BlobID = &id
	}
	rec, err := e.recordings.UpsertByTriple(ctx, day.ID, day.UserID, field, patch)
	require.NoError(t, err)
	return rec
}

func (e *testEnv) acquire(t *testing.T, day *models.Day) Job {
	t.Helper()
	acq, err := e.lock.TryAcquire(context.Background(), day.ID)
	require.NoError(t, err)
	require.True(t, acq.Acquired)
	return Job{DayID: day.ID, UserID: day.UserID, RunID: acq.RunID}
}

func (e *testEnv) newWorker(t *testing.T, queue *Queue, processor recordingProcessor) *Worker {
	t.Helper()
	if processor == nil {
		processor = e.pipeline
	}
	w, err := NewWorker(WorkerParams{
		Queue:      queue,
		Lock:       e.lock,
		Recordings: e.recordings,
		Pipeline:   processor,
	})
	require.NoError(t, err)
	return w
}

func (e *testEnv) status(t *testing.T, day *models.Day) *models.DayTranscription {
	t.Helper()
	st, err := e.lock.Status(context.Background(), day.ID)
	require.NoError(t, err)
	return st
}
