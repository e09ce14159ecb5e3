package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrNotFound            = errors.New("job not found")
	ErrArtifactExpired     = errors.New("artifact expired")
	ErrArtifactNotFound    = errors.New("artifact not found")
	ErrNotReady            = errors.New("job not ready")
	ErrJobFailed           = errors.New("job failed")
	ErrJobCancelled        = errors.New("job cancelled")
	ErrTransitionConflict  = errors.New("state transition conflict")
	ErrIllegalTransition   = errors.New("illegal state transition")
	ErrAlreadyExists       = errors.New("job already exists")
	ErrSecretNotConfigured = errors.New("auth material not configured")

	ErrUnauthorized      = errors.New("source requires authorization")
	ErrSourceUnavailable = errors.New("source permanently unavailable")
)

type ErrorKind string

const (
	KindValidation      ErrorKind = "ValidationError"
	KindFetch           ErrorKind = "FetchError"
	KindExtraction      ErrorKind = "ExtractionError"
	KindUpload          ErrorKind = "UploadError"
	KindTimeoutExceeded ErrorKind = "TimeoutExceeded"
	KindNotFound        ErrorKind = "NotFound"
)

const maxErrorMessage = 1024

// JobError is the structured failure cause stored on a FAILED job.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Stage   State     `json:"stage"`
	Message string    `json:"message"`

	cause error
}

func NewJobError(kind ErrorKind, stage State, cause error) *JobError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxErrorMessage {
		cut := maxErrorMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return &JobError{Kind: kind, Stage: stage, Message: msg, cause: cause}
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.cause
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects a submission before any job exists.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
