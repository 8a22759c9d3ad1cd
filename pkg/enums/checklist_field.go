package enums

import "fmt"

// ChecklistField names a daily checklist slot that can carry a recording.
type ChecklistField string

const (
	ChecklistFieldGreeting      ChecklistField = "greeting"
	ChecklistFieldReading       ChecklistField = "reading"
	ChecklistFieldVocabulary    ChecklistField = "vocabulary"
	ChecklistFieldPronunciation ChecklistField = "pronunciation"
	ChecklistFieldRepetition    ChecklistField = "repetition"
	ChecklistFieldStorytelling  ChecklistField = "storytelling"
	ChecklistFieldQuestions     ChecklistField = "questions"
	ChecklistFieldConversation  ChecklistField = "conversation"
	ChecklistFieldReflection    ChecklistField = "reflection"
	ChecklistFieldFreeSpeech    ChecklistField = "free_speech"
)

var validChecklistFields = []ChecklistField{
	ChecklistFieldGreeting,
	ChecklistFieldReading,
	ChecklistFieldVocabulary,
	ChecklistFieldPronunciation,
	ChecklistFieldRepetition,
	ChecklistFieldStorytelling,
	ChecklistFieldQuestions,
	ChecklistFieldConversation,
	ChecklistFieldReflection,
	ChecklistFieldFreeSpeech,
}

// String implements fmt.Stringer.
func (f ChecklistField) String() string {
	return string(f)
}

// IsValid reports whether the value is a known checklist slot.
func (f ChecklistField) IsValid() bool {
	for _, candidate := range validChecklistFields {
		if candidate == f {
			return true
		}
	}
	return false
}

// ChecklistFields returns every slot in checklist order.
func ChecklistFields() []ChecklistField {
	out := make([]ChecklistField, len(validChecklistFields))
	copy(out, validChecklistFields)
	return out
}

// ParseChecklistField converts raw input into a ChecklistField.
func ParseChecklistField(value string) (ChecklistField, error) {
	for _, candidate := range validChecklistFields {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checklist field %q", value)
}
