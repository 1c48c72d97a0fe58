package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is wrapped by MalformedFileError when the file
// extension is neither .csv nor .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrFileTooLarge is returned when an upload exceeds the configured size.
var ErrFileTooLarge = errors.New("file too large")

// MalformedFileError reports input that cannot be decoded as its declared format.
type MalformedFileError struct {
	FileName string
	Reason   string
	Err      error
}

func (e *MalformedFileError) Error() string {
	msg := fmt.Sprintf("malformed file %q: %s", e.FileName, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedFileError) Unwrap() error { return e.Err }

// EmptyFileError reports a file with a header but no data rows, or no rows at all.
type EmptyFileError struct {
	FileName string
}

func (e *EmptyFileError) Error() string {
	return fmt.Sprintf("file %q has no data rows", e.FileName)
}

// FieldFormatError reports a single cell that could not be normalized.
type FieldFormatError struct {
	Column   string
	RawValue string
	Reason   string
}

func (e *FieldFormatError) Error() string {
	if e.RawValue == "" {
		return fmt.Sprintf("%s: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q", e.Column, e.Reason, e.RawValue)
}

// NoValidRowsError reports that validation rejected every row of a file.
type NoValidRowsError struct {
	RowsRead    int
	FirstReason string
}

func (e *NoValidRowsError) Error() string {
	if e.FirstReason == "" {
		return fmt.Sprintf("no valid rows: all %d rows rejected", e.RowsRead)
	}
	return fmt.Sprintf("no valid rows: all %d rows rejected (first: %s)", e.RowsRead, e.FirstReason)
}

// ResolutionError reports a broken internal invariant in the entity graph.
type ResolutionError struct {
	Detail string
}

func (e *ResolutionError) Error() string {
	return "entity resolution invariant violated: " + e.Detail
}

// CommitFailedError reports that storing a new generation failed. The
// previously committed generation is untouched.
type CommitFailedError struct {
	Err error
}

func (e *CommitFailedError) Error() string {
	return "dataset commit failed: " + e.Err.Error()
}

func (e *CommitFailedError) Unwrap() error { return e.Err }

// Error kinds used for import-run failure reasons and metric labels.
const (
	KindMalformedFile = "malformed_file"
	KindEmptyFile     = "empty_file"
	KindFileTooLarge  = "file_too_large"
	KindNoValidRows   = "no_valid_rows"
	KindResolution    = "resolution"
	KindCommitFailed  = "commit_failed"
	KindCancelled     = "cancelled"
	KindTimeout       = "timeout"
	KindBusy          = "busy"
	KindInternal      = "internal"
)

// ErrorKind classifies err into one of the Kind constants.
// It returns "" for a nil error.
func ErrorKind(err error) string {
	var (
		malformed *MalformedFileError
		empty     *EmptyFileError
		noRows    *NoValidRowsError
		resolve   *ResolutionError
		commit    *CommitFailedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &commit):
		return KindCommitFailed
	case errors.Is(err, ErrFileTooLarge):
		return KindFileTooLarge
	case errors.As(err, &malformed):
		return KindMalformedFile
	case errors.As(err, &empty):
		return KindEmptyFile
	case errors.As(err, &noRows):
		return KindNoValidRows
	case errors.As(err, &resolve):
		return KindResolution
	case errors.Is(err, ErrTooManyImports):
		return KindBusy
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindInternal
	}
}
