package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"malformed", &MalformedFileError{FileName: "f.csv", Reason: "invalid CSV"}, KindMalformedFile},
		{"too large inside malformed", &MalformedFileError{FileName: "f.csv", Err: ErrFileTooLarge}, KindFileTooLarge},
		{"too large", fmt.Errorf("read: %w", ErrFileTooLarge), KindFileTooLarge},
		{"empty", &EmptyFileError{FileName: "f.csv"}, KindEmptyFile},
		{"no valid rows", &NoValidRowsError{RowsRead: 3}, KindNoValidRows},
		{"resolution", &ResolutionError{Detail: "x"}, KindResolution},
		{"commit", &CommitFailedError{Err: context.DeadlineExceeded}, KindCommitFailed},
		{"busy", ErrTooManyImports, KindBusy},
		{"timeout", fmt.Errorf("import: %w", context.DeadlineExceeded), KindTimeout},
		{"cancelled", context.Canceled, KindCancelled},
		{"other", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"too large", ErrFileTooLarge, "FILE001"},
		{"malformed", &MalformedFileError{FileName: "f.csv", Reason: "invalid CSV"}, "FILE002"},
		{"unsupported", &MalformedFileError{FileName: "f.txt", Err: ErrUnsupportedFormat}, "FILE003"},
		{"empty", &EmptyFileError{FileName: "f.csv"}, "FILE004"},
		{"no valid rows", &NoValidRowsError{RowsRead: 1}, "VAL001"},
		{"invalid date text", errors.New("parse: invalid date"), "VAL002"},
		{"invalid decimal text", errors.New("parse: invalid decimal"), "VAL003"},
		{"commit", &CommitFailedError{Err: errors.New("connection refused")}, "DB001"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB002"},
		{"db timeout text", errors.New("i/o timeout"), "DB003"},
		{"busy", ErrTooManyImports, "UPL001"},
		{"cancelled", context.Canceled, "UPL002"},
		{"timeout", context.DeadlineExceeded, "UPL003"},
		{"resolution hides detail", &ResolutionError{Detail: "usage 0 references unknown partner"}, "ERR000"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := MapError(tt.err)
			assert.Equal(t, tt.wantCode, msg.Code)
			assert.NotEmpty(t, msg.Message)
			assert.NotEmpty(t, msg.Action)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Equal(t, UserMessage{}, MapError(nil))
	assert.Empty(t, FormatUserError(nil))
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(&EmptyFileError{FileName: "f.csv"})
	assert.Equal(t, "The file contains no data rows (Code: FILE004). Add at least one row below the header", got)
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(&MalformedFileError{FileName: "f"}))
	assert.True(t, IsUserError(&EmptyFileError{}))
	assert.True(t, IsUserError(&NoValidRowsError{}))
	assert.True(t, IsUserError(ErrFileTooLarge))
	assert.False(t, IsUserError(&CommitFailedError{Err: errors.New("x")}))
	assert.False(t, IsUserError(ErrTooManyImports))
	assert.False(t, IsUserError(errors.New("boom")))
}
