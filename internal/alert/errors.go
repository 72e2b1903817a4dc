package alert

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("validation error")

// ErrNotFound is returned by stores when a rule id does not exist.
var ErrNotFound = errors.New("alert rule not found")

// ValidationError reports why a rule was rejected before any store write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("could not validate alert rule: %s", e.Reason)
	}
	return fmt.Sprintf("could not validate alert rule: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// MetaWriteError collects the meta keys that failed to write after the rule
// row itself was saved. Successful writes are not rolled back.
type MetaWriteError struct {
	RuleID int64
	Keys   []string
	Err    error
}

func (e *MetaWriteError) Error() string {
	return fmt.Sprintf("failed to write meta for alert %d (%s): %v", e.RuleID, strings.Join(e.Keys, ", "), e.Err)
}

func (e *MetaWriteError) Unwrap() error { return e.Err }
