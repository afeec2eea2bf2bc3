package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyDocument     = errors.New("document has no chunks")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Ingestion stages reported by IngestError.
const (
	StageInput     = "input"
	StageEmbedding = "embedding"
	StageIndexing  = "indexing"
)

// PreconditionError is a caller mistake that aborts the operation before any side effect.
type PreconditionError struct {
	Op  string
	Msg string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func NewPreconditionError(op, format string, args ...any) error {
	return &PreconditionError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// TransientBackendError wraps a backend failure that survived the retry budget.
type TransientBackendError struct {
	Stage string
	Err   error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("%s backend failed: %v", e.Stage, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }

// BackendContractError means the backend answered with something it promised not to.
type BackendContractError struct {
	Msg string
	Err error
}

func (e *BackendContractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend contract violation: %s: %v", e.Msg, e.Err)
	}
	return "backend contract violation: " + e.Msg
}

func (e *BackendContractError) Unwrap() error { return e.Err }

// MalformedResponseError is raised by decision parsing and recovered into a refusal.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed reasoning response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IngestError names the ingestion stage that failed.
type IngestError struct {
	Stage      string
	DocumentID string
	Err        error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest %s failed at %s stage: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
