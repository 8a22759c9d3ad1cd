package transcription

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/pkg/enums"
)

// Stage names one step of the per-recording pipeline.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StageExtract   Stage = "extract"
	StagePersist   Stage = "persist"
)

// ProcessFailure describes how an external subprocess ended.
type ProcessFailure struct {
	ExitCode int
	Signal   string
	// Killed is set for SIGKILL or exit status 137, which is how the kernel
	// OOM killer and container runtimes terminate a process.
	Killed   bool
	TimedOut bool
	Stderr   string
}

// StageError is a pipeline failure for one recording. It is recorded on the
// day and never aborts the remaining recordings.
type StageError struct {
	Stage       Stage
	RecordingID uuid.UUID
	Field       enums.ChecklistField
	Process     *ProcessFailure
	Err         error
}

func (e *StageError) Error() string {
	var b strings.Builder
	if e.Field != "" {
		b.WriteString(string(e.Field))
		b.WriteString(": ")
	}
	b.WriteString(e.Kind())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if p := e.Process; p != nil {
		switch {
		case p.TimedOut:
			b.WriteString(" (timed out)")
		case p.Killed:
			b.WriteString(" (killed, likely out of memory)")
		case p.Signal != "":
			fmt.Fprintf(&b, " (signal %s)", p.Signal)
		case p.ExitCode > 0:
			fmt.Fprintf(&b, " (exit %d)", p.ExitCode)
		}
		if p.Stderr != "" {
			b.WriteString(": ")
			b.WriteString(p.Stderr)
		}
	}
	return b.String()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind maps the stage to the failure name shown to users.
func (e *StageError) Kind() string {
	switch e.Stage {
	case StageFetch:
		return "FetchError"
	case StageNormalize:
		return "TranscodeError"
	case StageExtract:
		return "ExtractionError"
	case StagePersist:
		return "PersistError"
	default:
		return "PipelineError"
	}
}

// OutOfMemory reports whether the subprocess was killed for resource exhaustion.
func (e *StageError) OutOfMemory() bool {
	return e.Process != nil && e.Process.Killed && !e.Process.TimedOut
}

// StageOf returns the failing stage of err, if it carries one.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

func stageErr(stage Stage, err error) *StageError {
	se := &StageError{Stage: stage, Err: err}
	var pe *processError
	if errors.As(err, &pe) {
		se.Process = pe.failure
		se.Err = pe.cause
	}
	return se
}
