package enums

import "fmt"

// TranscriptionStatus is the lifecycle state of a day's transcription run.
type TranscriptionStatus string

const (
	// TranscriptionStatusAbsent means no run was ever requested.
	TranscriptionStatusAbsent     TranscriptionStatus = ""
	TranscriptionStatusQueued     TranscriptionStatus = "queued"
	TranscriptionStatusProcessing TranscriptionStatus = "processing"
	TranscriptionStatusDone       TranscriptionStatus = "done"
	TranscriptionStatusError      TranscriptionStatus = "error"
)

var validTranscriptionStatuses = []TranscriptionStatus{
	TranscriptionStatusAbsent,
	TranscriptionStatusQueued,
	TranscriptionStatusProcessing,
	TranscriptionStatusDone,
	TranscriptionStatusError,
}

// String returns the literal string for the status.
func (s TranscriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s TranscriptionStatus) IsValid() bool {
	for _, candidate := range validTranscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsLive reports whether the status holds the day lock.
func (s TranscriptionStatus) IsLive() bool {
	return s == TranscriptionStatusQueued || s == TranscriptionStatusProcessing
}

// IsTerminal reports whether a run finished, successfully or not.
func (s TranscriptionStatus) IsTerminal() bool {
	return s == TranscriptionStatusDone || s == TranscriptionStatusError
}

// LiveTranscriptionStatuses lists the statuses that lock a day.
func LiveTranscriptionStatuses() []TranscriptionStatus {
	return []TranscriptionStatus{TranscriptionStatusQueued, TranscriptionStatusProcessing}
}

// ParseTranscriptionStatus converts raw input into a TranscriptionStatus.
func ParseTranscriptionStatus(value string) (TranscriptionStatus, error) {
	for _, candidate := range validTranscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transcription status %q", value)
}
