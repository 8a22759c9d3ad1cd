package transcription

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
)

func TestWorkerOneFailingRecordingMarksDayError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	good1 := env.addRecording(t, env.day, enums.ChecklistFieldReading, []byte("first"))
	bad := env.addRecording(t, env.day, enums.ChecklistFieldVocabulary, []byte("bad"))
	good2 := env.addRecording(t, env.day, enums.ChecklistFieldGreeting, []byte("second"))

	job := env.acquire(t, env.day)
	env.newWorker(t, NewQueue(nil), nil).processDay(ctx, job)

	st := env.status(t, env.day)
	require.Equal(t, enums.TranscriptionStatusError, st.Status)
	require.NotNil(t, st.Error)
	assert.Contains(t, *st.Error, "1 of 3 recordings failed")
	assert.Contains(t, *st.Error, "vocabulary: ExtractionError")
	require.NotNil(t, st.FinishedAt)

	for _, rec := range []*models.Recording{good1, good2} {
		got, err := env.recordings.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Text, "recording %s should be transcribed", rec.Field)
	}
	got, err := env.recordings.Get(ctx, bad.ID)
	require.NoError(t, err)
	require.Nil(t, got.Text)
}

func TestWorkerDayWithoutRecordingsGoesDone(t *testing.T) {
	env := newTestEnv(t)
	job := env.acquire(t, env.day)

	env.newWorker(t, NewQueue(nil), nil).processDay(context.Background(), job)

	st := env.status(t, env.day)
	require.Equal(t, enums.TranscriptionStatusDone, st.Status)
	require.NotNil(t, st.StartedAt, "day passes through processing")
	require.NotNil(t, st.FinishedAt)
	require.Nil(t, st.Error)
}

// statusRecorder records the day status seen while each recording is processed.
type statusRecorder struct {
	env  *testEnv
	day  *models.Day
	next recordingProcessor
	seen []enums.TranscriptionStatus
}

func (p *statusRecorder) Process(ctx context.Context, rec models.Recording) error {
	st, err := p.env.lock.Status(ctx, p.day.ID)
	if err != nil {
		return err
	}
	p.seen = append(p.seen, st.Status)
	return p.next.Process(ctx, rec)
}

// flakyTransitions fails the first MarkProcessing calls.
type flakyTransitions struct {
	dayTransitions
	failures int
	calls    int
}

func (f *flakyTransitions) MarkProcessing(ctx context.Context, dayID, runID uuid.UUID) (bool, error) {
	f.calls++
	if f.calls <= f.failures {
		return false, fmt.Errorf("connection reset")
	}
	return f.dayTransitions.MarkProcessing(ctx, dayID, runID)
}

func TestWorkerRetriesMarkProcessingOnce(t *testing.T) {
	env := newTestEnv(t)
	env.addRecording(t, env.day, enums.ChecklistFieldReading, []byte("first"))
	job := env.acquire(t, env.day)

	w := env.newWorker(t, NewQueue(nil), nil)
	flaky := &flakyTransitions{dayTransitions: env.lock, failures: 1}
	w.lock = flaky
	w.retryDelay = time.Millisecond
	w.processDay(context.Background(), job)

	require.Equal(t, 2, flaky.calls)
	require.Equal(t, enums.TranscriptionStatusDone, env.status(t, env.day).Status)
}

func TestWorkerReleasesDayWhenMarkProcessingKeepsFailing(t *testing.T) {
	env := newTestEnv(t)
	job := env.acquire(t, env.day)

	w := env.newWorker(t, NewQueue(nil), nil)
	w.lock = &flakyTransitions{dayTransitions: env.lock, failures: 2}
	w.retryDelay = time.Millisecond
	w.processDay(context.Background(), job)

	st := env.status(t, env.day)
	require.Equal(t, enums.TranscriptionStatusError, st.Status)
	require.NotNil(t, st.Error)
	assert.Contains(t, *st.Error, "connection reset")

	locked, err := env.lock.IsLocked(context.Background(), env.day.ID)
	require.NoError(t, err)
	require.False(t, locked, "recording edits are allowed again")
}

func TestWorkerThreeRecordingScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	withAudio1 := env.addRecording(t, env.day, enums.ChecklistFieldReading, []byte("one"))
	withAudio2 := env.addRecording(t, env.day, enums.ChecklistFieldStorytelling, []byte("two"))
	silent := env.addRecording(t, env.day, enums.ChecklistFieldReflection, nil)

	recorder := &statusRecorder{env: env, day: env.day, next: env.pipeline}
	env.newWorker(t, NewQueue(nil), recorder).processDay(ctx, env.acquire(t, env.day))

	require.Equal(t, []enums.TranscriptionStatus{
		enums.TranscriptionStatusProcessing,
		enums.TranscriptionStatusProcessing,
		enums.TranscriptionStatusProcessing,
	}, recorder.seen)
	require.Equal(t, enums.TranscriptionStatusDone, env.status(t, env.day).Status)

	for _, rec := range []*models.Recording{withAudio1, withAudio2} {
		got, err := env.recordings.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Text)
	}
	got, err := env.recordings.Get(ctx, silent.ID)
	require.NoError(t, err)
	require.Nil(t, got.Text)
}

func TestWorkerSkipsJobThatLostItsLock(t *testing.T) {
	env := newTestEnv(t)
	env.acquire(t, env.day)
	stale := Job{DayID: env.day.ID, UserID: env.day.UserID, RunID: uuid.New()}

	env.newWorker(t, NewQueue(nil), nil).processDay(context.Background(), stale)

	require.Equal(t, enums.TranscriptionStatusQueued, env.status(t, env.day).Status)
}

func TestWorkerRecoversPanicAndKeepsDraining(t *testing.T) {
	env := newTestEnv(t)
	exploding := env.day
	env.addRecording(t, exploding, enums.ChecklistFieldReading, []byte("panic"))
	healthy := env.newDay(t)
	env.addRecording(t, healthy, enums.ChecklistFieldReading, []byte("fine"))

	queue := NewQueue(nil)
	worker := env.newWorker(t, queue, nil)
	queue.Enqueue(env.acquire(t, exploding))
	queue.Enqueue(env.acquire(t, healthy))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, err := env.lock.Status(context.Background(), healthy.ID)
		return err == nil && st.Status == enums.TranscriptionStatusDone
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	st := env.status(t, exploding)
	require.Equal(t, enums.TranscriptionStatusError, st.Status)
	require.NotNil(t, st.Error)
	require.Contains(t, *st.Error, "extractor exploded")
}

func TestQueueDrainsInOrderOneAtATime(t *testing.T) {
	queue := NewQueue(nil)
	const total = 50

	var (
		mu       sync.Mutex
		order    []int
		inFlight int32
		maxSeen  int32
	)
	ids := make(map[uuid.UUID]int, total)
	jobs := make([]Job, total)
	for i := range jobs {
		jobs[i] = Job{DayID: uuid.New()}
		ids[jobs[i].DayID] = i
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- queue.Drain(ctx, func(_ context.Context, job Job) {
			cur := atomic.AddInt32(&inFlight, 1)
			if cur > atomic.LoadInt32(&maxSeen) {
				atomic.StoreInt32(&maxSeen, cur)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)

			mu.Lock()
			order = append(order, ids[job.DayID])
			n := len(order)
			mu.Unlock()
			if n == total {
				cancel()
			}
		})
	}()

	for _, job := range jobs {
		queue.Enqueue(job)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue did not drain")
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
	for i, got := range order {
		require.Equal(t, i, got, fmt.Sprintf("job %d out of order", i))
	}
	require.Zero(t, queue.Len())
}

func TestQueueEnqueueNeverBlocks(t *testing.T) {
	queue := NewQueue(nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			queue.Enqueue(Job{DayID: uuid.New()})
		}()
	}
	wg.Wait()
	require.Equal(t, 100, queue.Len())
}
