package core

// validation.go defines how record stores report rejected records, and how
// the engine tells those apart from infrastructure failures.
//
// Stores wrap record-level problems (constraint violations, values that do not
// cast to the column type, unknown attributes) in *ValidationError. Anything
// else is treated as a system failure. The run counters coalesce both, but
// the distinction is kept in Outcome for logging and tests.

import (
	"errors"
	"fmt"
)

// ValidationError reports a record rejected by the store.
type ValidationError struct {
	Field   string // Attribute name, empty for record-wide problems
	Value   string // The offending value, if any
	Message string // Human-readable reason
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Message)
	}
	return "invalid record: " + e.Message
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Outcome is the typed result of a record save or update.
type Outcome int

const (
	OutcomeSaved   Outcome = iota // persisted
	OutcomeInvalid                // rejected by validation
	OutcomeFailed                 // infrastructure error
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "failed"
	}
}

// OutcomeOf classifies the error returned by a store write.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSaved
	case IsValidation(err):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}
