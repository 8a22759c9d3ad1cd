package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/daybook-backend/pkg/db/models"
	"github.com/angelmondragon/daybook-backend/pkg/logger"
	"github.com/angelmondragon/daybook-backend/pkg/metrics"
)

const (
	outcomeDone        = "done"
	outcomeError       = "error"
	outcomeSkipped     = "skipped"
	finalizeTimeout    = 10 * time.Second
	markRetryDelay     = 500 * time.Millisecond
	interruptedMessage = "transcription interrupted by shutdown"
)

type dayTransitions interface {
	MarkProcessing(ctx context.Context, dayID, runID uuid.UUID) (bool, error)
	MarkDone(ctx context.Context, dayID, runID uuid.UUID) (bool, error)
	MarkError(ctx context.Context, dayID, runID uuid.UUID, message string) (bool, error)
}

type recordingLister interface {
	FindByDayUser(ctx context.Context, dayID, userID uuid.UUID) ([]models.Recording, error)
}

type recordingProcessor interface {
	Process(ctx context.Context, rec models.Recording) error
}

// WorkerParams wires the single transcription worker.
type WorkerParams struct {
	Queue      *Queue
	Lock       dayTransitions
	Recordings recordingLister
	Pipeline   recordingProcessor
	Logger     *logger.Logger
	Metrics    *metrics.TranscriptionMetrics
}

// Worker drains the queue, transcribing one day at a time.
type Worker struct {
	queue      *Queue
	lock       dayTransitions
	recordings recordingLister
	pipeline   recordingProcessor
	logg       *logger.Logger
	metrics    *metrics.TranscriptionMetrics
	now        func() time.Time
	retryDelay time.Duration
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Queue == nil {
		return nil, errors.New("queue required")
	}
	if params.Lock == nil {
		return nil, errors.New("day lock required")
	}
	if params.Recordings == nil {
		return nil, errors.New("recording lister required")
	}
	if params.Pipeline == nil {
		return nil, errors.New("pipeline required")
	}
	return &Worker{
		queue:      params.Queue,
		lock:       params.Lock,
		recordings: params.Recordings,
		pipeline:   params.Pipeline,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        time.Now,
		retryDelay: markRetryDelay,
	}, nil
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.info(ctx, "transcription worker started")
	err := w.queue.Drain(ctx, w.processDay)
	w.info(context.Background(), "transcription worker stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) processDay(ctx context.Context, job Job) {
	if w.logg != nil {
		ctx = w.logg.WithDayID(ctx, job.DayID.String())
		ctx = w.logg.WithRunID(ctx, job.RunID.String())
	}
	started := w.now()
	marked := false

	defer func() {
		if r := recover(); r != nil {
			w.error(ctx, "transcription job panicked", fmt.Errorf("panic: %v", r))
			if marked {
				w.finish(ctx, job, started, fmt.Sprintf("internal error: %v", r))
			}
		}
	}()

	ok, err := w.markProcessing(ctx, job)
	if err != nil {
		// release the lock so edits are not refused until the run goes stale
		w.error(ctx, "mark day processing failed", err)
		w.finish(ctx, job, started, fmt.Sprintf("start run: %v", err))
		return
	}
	if !ok {
		w.info(ctx, "day no longer held by this run, skipping")
		w.metrics.ObserveDay(outcomeSkipped, w.now().Sub(started))
		return
	}
	marked = true

	recs, err := w.recordings.FindByDayUser(ctx, job.DayID, job.UserID)
	if err != nil {
		w.finish(ctx, job, started, fmt.Sprintf("load recordings: %v", err))
		return
	}

	pipelineCtx := WithAuthToken(ctx, job.AuthToken)
	var failures error
	for _, rec := range recs {
		if ctx.Err() != nil {
			w.finish(ctx, job, started, interruptedMessage)
			return
		}
		if err := w.pipeline.Process(pipelineCtx, rec); err != nil {
			failures = multierr.Append(failures, err)
			stage, _ := StageOf(err)
			w.metrics.IncRecordingFailure(string(stage))
			w.warn(ctx, fmt.Sprintf("recording %s failed: %v", rec.ID, err))
		}
	}

	if ctx.Err() != nil {
		w.finish(ctx, job, started, interruptedMessage)
		return
	}
	w.finish(ctx, job, started, summarize(failures, len(recs)))
}

// markProcessing retries a failed transition once.
func (w *Worker) markProcessing(ctx context.Context, job Job) (bool, error) {
	ok, err := w.lock.MarkProcessing(ctx, job.DayID, job.RunID)
	if err == nil {
		return ok, nil
	}
	w.warn(ctx, fmt.Sprintf("mark day processing failed, retrying: %v", err))

	timer := time.NewTimer(w.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, err
	case <-timer.C:
	}
	return w.lock.MarkProcessing(ctx, job.DayID, job.RunID)
}

// finish writes the terminal status. An empty message means success.
func (w *Worker) finish(ctx context.Context, job Job, started time.Time, message string) {
	// shutdown must not prevent the terminal write
	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	var (
		ok      bool
		err     error
		outcome = outcomeDone
	)
	if message == "" {
		ok, err = w.lock.MarkDone(finalCtx, job.DayID, job.RunID)
	} else {
		outcome = outcomeError
		ok, err = w.lock.MarkError(finalCtx, job.DayID, job.RunID, message)
	}
	w.metrics.ObserveDay(outcome, w.now().Sub(started))

	switch {
	case err != nil:
		w.error(ctx, "record day outcome failed", err)
	case !ok:
		w.info(ctx, "day was reclaimed before this run finished")
	default:
		w.info(ctx, "transcription "+outcome)
	}
}

func summarize(failures error, total int) string {
	errs := multierr.Errors(failures)
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%d of %d recordings failed: %s", len(errs), total, strings.Join(parts, "; "))
}

func (w *Worker) info(ctx context.Context, msg string) {
	if w.logg != nil {
		w.logg.Info(ctx, msg)
	}
}

func (w *Worker) warn(ctx context.Context, msg string) {
	if w.logg != nil {
		w.logg.Warn(ctx, msg)
	}
}

func (w *Worker) error(ctx context.Context, msg string, err error) {
	if w.logg != nil {
		w.logg.Error(ctx, msg, err)
	}
}
