package transcription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job asks the worker to transcribe every recording of one day.
//
// RunID is the lock token minted by TryAcquire. AuthToken is the caller's
// bearer token, forwarded to protected downstream calls; recovered jobs carry none.
type Job struct {
	DayID      uuid.UUID
	UserID     uuid.UUID
	RunID      uuid.UUID
	AuthToken  string
	EnqueuedAt time.Time
}

type authTokenKey struct{}

// WithAuthToken attaches the job's bearer token for extractors that call out.
func WithAuthToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, authTokenKey{}, token)
}

// AuthTokenFromContext returns the bearer token set by WithAuthToken.
func AuthTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(authTokenKey{}).(string)
	return token
}
