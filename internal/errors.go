package internal

import "fmt"

// UnsupportedArtifactError marks a file that is structurally not a
// recognized session source. Recorded as a skip, never fatal.
type UnsupportedArtifactError struct {
	Path   string
	Reason string
}

func (e *UnsupportedArtifactError) Error() string {
	return fmt.Sprintf("unsupported artifact %s: %s", e.Path, e.Reason)
}

// DecodeError marks an artifact whose top-level container could not be
// decoded at all. The artifact is excluded from derived tables; raw bytes
// are retained when a session id was still recoverable.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DuplicateSessionError marks an artifact that lost a duplicate-id
// resolution to a newer artifact in the same run.
type DuplicateSessionError struct {
	SessionID  string
	Path       string
	WinnerPath string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("duplicate session %s: %s superseded by %s", e.SessionID, e.Path, e.WinnerPath)
}

// StoreError represents a persistence failure. Op is "open", "ingest",
// "query", or "rebuild". An "open" failure is the only condition fatal to
// a whole scan; an "ingest" failure rolls back that session only.
type StoreError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StoreError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("store error: %s [%s]: %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("store error: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ParseError represents a recoverable failure inside one artifact.
type ParseError struct {
	Path string
	Kind SourceKind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
