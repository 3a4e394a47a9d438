package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for the interview engine. Endpoints translate these into
// HTTP status codes; nothing below the endpoint layer knows about HTTP.
var (
	// ErrNotFound covers absent sessions and QA records. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrSessionComplete signals that generateNextQuestion was called after
	// the question budget was exhausted.
	ErrSessionComplete = errors.New("all questions have been generated for this session")

	// ErrConflict surfaces store-level uniqueness or compare-and-swap
	// failures, e.g. two generations racing on the same question number.
	ErrConflict = errors.New("conflicting concurrent update")
)

// PolicyViolationError names a rule the caller broke, such as requesting a
// hint for a question that is not hard.
type PolicyViolationError struct {
	Rule   string
	Detail string
}

func (e *PolicyViolationError) Error() string {
	if e.Detail == "" {
		return e.Rule
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Detail)
}

// NewPolicyViolation builds a PolicyViolationError with a formatted detail.
func NewPolicyViolation(rule, format string, args ...interface{}) *PolicyViolationError {
	return &PolicyViolationError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a failed AI-capability call. Transcription and speech
// synthesis failures propagate as UpstreamError so the client can retry the
// step without recreating the question.
type UpstreamError struct {
	Capability string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Capability, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsPolicyViolation reports whether err is a PolicyViolationError.
func IsPolicyViolation(err error) bool {
	var pv *PolicyViolationError
	return errors.As(err, &pv)
}

// IsUpstream reports whether err is an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
