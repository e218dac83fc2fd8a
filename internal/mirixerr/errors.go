// Package mirixerr defines the error taxonomy shared by every memory
// coordination component: Store lookups, upload jobs, and LLM round trips
// all classify failures through these types rather than ad-hoc strings.
package mirixerr

import (
	"errors"
	"fmt"
)

// NotFound is returned when an entity lookup misses. Never retried.
type NotFound struct {
	Kind string
	ID   string
}

func (e *NotFound) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

func NewNotFound(kind, id string) error { return &NotFound{Kind: kind, ID: id} }

// IsNotFound reports whether err is or wraps a NotFound.
func IsNotFound(err error) bool {
	var nf *NotFound
	return errors.As(err, &nf)
}

// InvariantViolation is raised by a tool call that breaks a documented
// precondition, e.g. core_memory_replace with a non-substring old value.
type InvariantViolation struct {
	Op      string
	Message string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Message)
}

func NewInvariantViolation(op, msg string) error {
	return &InvariantViolation{Op: op, Message: msg}
}

// IsInvariantViolation reports whether err is or wraps an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// UploadErrorKind distinguishes retryable upload failures from permanent ones.
type UploadErrorKind int

const (
	UploadTransient UploadErrorKind = iota
	UploadPermanent
)

// UploadError wraps an underlying failure from the blob provider with a
// retry classification. Transient errors are retried per the upload
// manager's backoff policy; permanent ones drop the placeholder immediately.
type UploadError struct {
	Kind UploadErrorKind
	Err  error
}

func (e *UploadError) Error() string {
	kind := "transient"
	if e.Kind == UploadPermanent {
		kind = "permanent"
	}
	return fmt.Sprintf("upload error (%s): %v", kind, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func NewUploadError(kind UploadErrorKind, err error) error {
	return &UploadError{Kind: kind, Err: err}
}

// IsUploadError reports whether err is or wraps an UploadError, and if so
// whether it was classified permanent.
func IsUploadError(err error) (ue *UploadError, ok bool) {
	ok = errors.As(err, &ue)
	return
}

// UploadTimeout means a placeholder exceeded its pending deadline. The
// parent observation is evicted from the accumulator; this is not
// surfaced to the end user unless every in-flight item fails.
type UploadTimeout struct {
	PlaceholderID string
	After         string
}

func (e *UploadTimeout) Error() string {
	return fmt.Sprintf("upload %s timed out after %s", e.PlaceholderID, e.After)
}

func NewUploadTimeout(id, after string) error {
	return &UploadTimeout{PlaceholderID: id, After: after}
}

// LLM error tokens surfaced from SendMessage when a provider round trip or
// tool-call transcript can't be parsed into a user-facing reply.
const (
	ErrResponseFailed           = "ERROR_RESPONSE_FAILED"
	ErrInvalidResponseStructure = "ERROR_INVALID_RESPONSE_STRUCTURE"
	ErrNoToolCall               = "ERROR_NO_TOOL_CALL"
	ErrNoMessageInArgs          = "ERROR_NO_MESSAGE_IN_ARGS"
	ErrParsingException         = "ERROR_PARSING_EXCEPTION"
)

// LLMError wraps a network or schema failure from an LLM provider. The
// Token field is one of the Err* constants above and is what callers of
// Coordinator.SendMessage see in place of a parsed reply.
type LLMError struct {
	Token string
	Err   error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Token, e.Err)
	}
	return e.Token
}

func (e *LLMError) Unwrap() error { return e.Err }

func NewLLMError(token string, err error) error { return &LLMError{Token: token, Err: err} }

// MissingAPIKey reports a model-selection request whose provider key is
// unavailable. Unlike the other taxonomy members, this is not an error to
// be raised. SetModel/SetMemoryModel do not return this type: they report
// a missing key by provider name in SetModelResult.MissingKeys.
type MissingAPIKey struct {
	Provider         string
	ModelRequirement string
}
