package core

import (
	"io"
	"path/filepath"
	"strings"
)

// Format is the declared encoding of an uploaded file.
type Format int

const (
	FormatCSV Format = iota + 1
	FormatSpreadsheet
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatSpreadsheet:
		return "xlsx"
	default:
		return "unknown"
	}
}

// DetectFormat returns the format declared by the file extension.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatSpreadsheet, nil
	default:
		return 0, &MalformedFileError{
			FileName: fileName,
			Reason:   "only .csv and .xlsx files are supported",
			Err:      ErrUnsupportedFormat,
		}
	}
}

// RowReader yields data rows lazily. Next returns io.EOF after the last row,
// or *EmptyFileError if the file held no data rows at all. Close must be
// called on every path; it is safe to call more than once.
type RowReader interface {
	Header() []string
	Next() (RawRow, error)
	Close() error
}

// OpenReader returns a RowReader for r. The header row is consumed before
// OpenReader returns, so header-level problems surface here.
func OpenReader(r io.Reader, format Format, fileName string) (RowReader, error) {
	switch format {
	case FormatCSV:
		rd, err := newCSVReader(r, fileName)
		if err != nil {
			return nil, err
		}
		return rd, nil
	case FormatSpreadsheet:
		rd, err := newSpreadsheetReader(r, fileName)
		if err != nil {
			return nil, err
		}
		return rd, nil
	default:
		return nil, &MalformedFileError{FileName: fileName, Reason: "unknown format", Err: ErrUnsupportedFormat}
	}
}

// headerColumns maps canonical column names to their first position.
type headerColumns struct {
	names []string
	index map[string]int
}

func newHeaderColumns(cells []string) headerColumns {
	h := headerColumns{
		names: make([]string, len(cells)),
		index: make(map[string]int, len(cells)),
	}
	for i, c := range cells {
		name := NormalizeHeader(c)
		h.names[i] = name
		if name == "" {
			continue
		}
		if _, dup := h.index[name]; !dup {
			h.index[name] = i
		}
	}
	return h
}

func (h headerColumns) empty() bool {
	return len(h.index) == 0
}

func isBlankRecord(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
