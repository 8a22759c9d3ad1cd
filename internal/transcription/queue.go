package transcription

import (
	"context"
	"sync"

	"github.com/angelmondragon/daybook-backend/pkg/metrics"
)

// Queue is an unbounded in-process FIFO of day jobs with a single consumer.
// Jobs are lost on restart; the day lock status survives and Recover re-enqueues them.
type Queue struct {
	mu      sync.Mutex
	jobs    []Job
	wake    chan struct{}
	metrics *metrics.TranscriptionMetrics
}

func NewQueue(m *metrics.TranscriptionMetrics) *Queue {
	return &Queue{wake: make(chan struct{}, 1), metrics: m}
}

// Enqueue appends job and wakes the consumer. It never blocks.
func (q *Queue) Enqueue(job Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	depth := len(q.jobs)
	q.mu.Unlock()

	q.metrics.SetQueueDepth(depth)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	q.metrics.SetQueueDepth(len(q.jobs))
	return job, true
}

// Drain calls handle for each job in submission order, one at a time, until
// ctx is done. Jobs still waiting at shutdown stay in the queue.
func (q *Queue) Drain(ctx context.Context, handle func(context.Context, Job)) error {
	for {
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			job, ok := q.pop()
			if !ok {
				break
			}
			handle(ctx, job)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
	}
}
