package core

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

// sniffBytes bounds how much of the first line is inspected for the delimiter.
const sniffBytes = 64 * 1024

type csvReader struct {
	fileName string
	r        *csv.Reader
	header   headerColumns
	rows     int
	done     bool
}

func newCSVReader(src io.Reader, fileName string) (*csvReader, error) {
	br := bufio.NewReaderSize(decodeText(src), sniffBytes)

	r := csv.NewReader(br)
	r.Comma = sniffDelimiter(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	c := &csvReader{fileName: fileName, r: r}
	if err := c.readHeader(); err != nil {
		return nil, err
	}
	return c, nil
}

// sniffDelimiter picks ';', tab or ',' by counting unquoted occurrences in
// the first line. Locale exports with decimal commas use ';'.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(sniffBytes)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}

	counts := map[rune]int{}
	inQuotes := false
	for _, b := range peek {
		switch b {
		case '"':
			inQuotes = !inQuotes
		case ',', ';', '\t':
			if !inQuotes {
				counts[rune(b)]++
			}
		}
	}

	best := ','
	for _, d := range []rune{';', '\t'} {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

func (c *csvReader) readHeader() error {
	for {
		record, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			return &EmptyFileError{FileName: c.fileName}
		}
		if err != nil {
			return c.wrapErr(err)
		}
		if isBlankRecord(record) {
			continue
		}
		c.header = newHeaderColumns(record)
		if c.header.empty() {
			return &MalformedFileError{FileName: c.fileName, Reason: "header row has no column names"}
		}
		return nil
	}
}

func (c *csvReader) Header() []string {
	return c.header.names
}

func (c *csvReader) Next() (RawRow, error) {
	if c.done {
		return RawRow{}, io.EOF
	}
	for {
		record, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			c.done = true
			if c.rows == 0 {
				return RawRow{}, &EmptyFileError{FileName: c.fileName}
			}
			return RawRow{}, io.EOF
		}
		if err != nil {
			return RawRow{}, c.wrapErr(err)
		}
		if isBlankRecord(record) {
			continue
		}

		line, _ := c.r.FieldPos(0)
		row := RawRow{Line: line, Cells: make(map[string]Cell, len(c.header.index))}
		for name, idx := range c.header.index {
			if idx < len(record) {
				row.Cells[name] = Cell{Text: record[idx]}
			}
		}
		c.rows++
		return row, nil
	}
}

func (c *csvReader) wrapErr(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &MalformedFileError{FileName: c.fileName, Reason: "invalid CSV", Err: err}
	}
	return &MalformedFileError{FileName: c.fileName, Reason: "read failed", Err: err}
}

// Close is a no-op; the upload body is owned by the caller.
func (c *csvReader) Close() error {
	c.done = true
	return nil
}
