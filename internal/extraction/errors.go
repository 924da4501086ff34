package extraction

import (
	"errors"
	"fmt"
)

var ErrNoSources = errors.New("extraction requires at least one source")

// InvalidSourceTypeError rejects a whole run before any provider call is
// made; partial runs over a mixed-valid batch are not allowed.
type InvalidSourceTypeError struct {
	SourceID string
	Type     string
}

func (e *InvalidSourceTypeError) Error() string {
	return fmt.Sprintf("source %s has invalid type %q", e.SourceID, e.Type)
}

// Diagnosis values attached to a run that produced zero themes. Exactly one
// is chosen; "no themes" is never reported without one.
const (
	DiagnosisTopicsTooDiverse    = "topics_too_diverse"
	DiagnosisContentTooShort     = "content_too_short"
	DiagnosisThresholdsTooStrict = "thresholds_too_strict"
)
