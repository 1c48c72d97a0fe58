// Package core provides the business logic for usage file imports.
//
// # Error Codes Reference
//
// User-facing messages carry a code that support staff can search for in
// the logs. Typed pipeline errors map directly; anything else falls back to
// pattern matching on the error text.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - File could not be read as CSV or spreadsheet
//	FILE003 - Unsupported file type (only .csv and .xlsx)
//	FILE004 - File has no data rows
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Every row was rejected
//	VAL002 - Invalid date value
//	VAL003 - Invalid number value
//
// # Database Errors (DB001-DB099)
//
//	DB001 - The new dataset could not be saved; previous data is unchanged
//	DB002 - Database unavailable
//	DB003 - Database timeout
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Too many concurrent imports
//	UPL002 - Import cancelled
//	UPL003 - Import took too long
//
// # Request Errors (REQ001-REQ099), set by the web layer
//
//	REQ001 - Not a multipart/form-data request
//	REQ002 - No "file" part in the form
//	REQ003 - Per-IP rate limit exceeded
//
// # Fallback
//
//	ERR000 - Unexpected error; check server logs by request_id
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[string]UserMessage{
	KindFileTooLarge: {
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	},
	KindMalformedFile: {
		Message: "The file could not be read",
		Action:  "Check that the file is a valid CSV or Excel workbook",
		Code:    "FILE002",
	},
	KindEmptyFile: {
		Message: "The file contains no data rows",
		Action:  "Add at least one row below the header",
		Code:    "FILE004",
	},
	KindNoValidRows: {
		Message: "No valid rows found in the file",
		Action:  "Make sure partner_id, customer_id, product_id, usage_date, quantity and unit_price are filled in",
		Code:    "VAL001",
	},
	KindResolution: {
		Message: "The import could not be completed",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	},
	KindCommitFailed: {
		Message: "The new data could not be saved. The previous data is unchanged",
		Action:  "Please try again in a few moments",
		Code:    "DB001",
	},
	KindBusy: {
		Message: "Too many imports are running",
		Action:  "Please try again in a few moments",
		Code:    "UPL001",
	},
	KindCancelled: {
		Message: "The import was cancelled",
		Action:  "Upload the file again",
		Code:    "UPL002",
	},
	KindTimeout: {
		Message: "The import took too long",
		Action:  "Try a smaller file or try again later",
		Code:    "UPL003",
	},
}

var unsupportedFormatMessage = UserMessage{
	Message: "Unsupported file type",
	Action:  "Upload a .csv or .xlsx file",
	Code:    "FILE003",
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches untyped errors. First match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, DD/MM/YYYY or DD-MM-YYYY",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid decimal",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Use digits with a single . or , as decimal separator",
			Code:    "VAL003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Database operation timed out",
			Action:  "Please try again later",
			Code:    "DB003",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Typed pipeline
// errors are matched first; internal errors never expose their text.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, ErrUnsupportedFormat) {
		return unsupportedFormatMessage
	}

	kind := ErrorKind(err)
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserError reports whether err is caused by the uploaded file rather than
// by the server.
func IsUserError(err error) bool {
	switch ErrorKind(err) {
	case KindMalformedFile, KindEmptyFile, KindNoValidRows, KindFileTooLarge:
		return true
	}
	return false
}
