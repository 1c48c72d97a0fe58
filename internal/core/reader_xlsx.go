package core

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// spreadsheetReader streams rows of the first worksheet of an .xlsx workbook.
type spreadsheetReader struct {
	fileName string
	file     *excelize.File
	rows     *excelize.Rows
	sheet    string
	date1904 bool

	header    headerColumns
	rowNum    int
	dataRows  int
	done      bool
	closed    bool
	dateStyle map[int]bool
}

func newSpreadsheetReader(src io.Reader, fileName string) (_ *spreadsheetReader, err error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, &MalformedFileError{FileName: fileName, Reason: "invalid spreadsheet", Err: err}
	}

	s := &spreadsheetReader{
		fileName:  fileName,
		file:      f,
		dateStyle: make(map[int]bool),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &MalformedFileError{FileName: fileName, Reason: "workbook has no worksheets"}
	}
	s.sheet = sheets[0]

	if props, perr := f.GetWorkbookProps(); perr == nil && props.Date1904 != nil {
		s.date1904 = *props.Date1904
	}

	s.rows, err = f.Rows(s.sheet)
	if err != nil {
		return nil, &MalformedFileError{FileName: fileName, Reason: "cannot read worksheet " + s.sheet, Err: err}
	}

	if err := s.readHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *spreadsheetReader) readHeader() error {
	for s.rows.Next() {
		s.rowNum++
		cols, err := s.rows.Columns()
		if err != nil {
			return s.wrapErr(err)
		}
		if isBlankRecord(cols) {
			continue
		}
		s.header = newHeaderColumns(cols)
		if s.header.empty() {
			return &MalformedFileError{FileName: s.fileName, Reason: "header row has no column names"}
		}
		return nil
	}
	if err := s.rows.Error(); err != nil {
		return s.wrapErr(err)
	}
	return &EmptyFileError{FileName: s.fileName}
}

func (s *spreadsheetReader) Header() []string {
	return s.header.names
}

func (s *spreadsheetReader) Next() (RawRow, error) {
	if s.done || s.closed {
		return RawRow{}, io.EOF
	}
	for s.rows.Next() {
		s.rowNum++
		// Raw values keep numbers and date serials unformatted.
		cols, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return RawRow{}, s.wrapErr(err)
		}
		if isBlankRecord(cols) {
			continue
		}

		row := RawRow{Line: s.rowNum, Cells: make(map[string]Cell, len(s.header.index))}
		for name, idx := range s.header.index {
			if idx >= len(cols) {
				continue
			}
			row.Cells[name] = s.cell(idx, cols[idx])
		}
		s.dataRows++
		return row, nil
	}
	if err := s.rows.Error(); err != nil {
		return RawRow{}, s.wrapErr(err)
	}

	s.done = true
	if s.dataRows == 0 {
		return RawRow{}, &EmptyFileError{FileName: s.fileName}
	}
	return RawRow{}, io.EOF
}

// cell converts a raw value, turning date-formatted serials into dates.
// Other numbers keep their serial so a date column can still use it.
func (s *spreadsheetReader) cell(colIdx int, raw string) Cell {
	raw = strings.TrimSpace(raw)
	number, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Cell{Text: raw}
	}
	c := Cell{Text: raw, Number: number, IsNumber: true, Date1904: s.date1904}
	if !s.isDateCell(colIdx) {
		return c
	}
	if t, err := DateFromSerial(number, s.date1904); err == nil {
		c.Date, c.IsDate = t, true
	}
	return c
}

func (s *spreadsheetReader) isDateCell(colIdx int) bool {
	axis, err := excelize.CoordinatesToCellName(colIdx+1, s.rowNum)
	if err != nil {
		return false
	}
	styleID, err := s.file.GetCellStyle(s.sheet, axis)
	if err != nil {
		return false
	}
	if isDate, ok := s.dateStyle[styleID]; ok {
		return isDate
	}

	isDate := false
	if style, err := s.file.GetStyle(styleID); err == nil && style != nil {
		isDate = isDateNumFmt(style.NumFmt, style.CustomNumFmt)
	}
	s.dateStyle[styleID] = isDate
	return isDate
}

// isDateNumFmt reports whether a number format renders a calendar date.
// Built-in ids follow ECMA-376 18.8.30 plus the CJK date ranges.
func isDateNumFmt(id int, custom *string) bool {
	if custom != nil && *custom != "" {
		return isDateFormatCode(*custom)
	}
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode looks for day or year tokens outside quoted literals and
// bracketed sections. Pure time formats such as "[h]:mm" are not dates.
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '[':
			inBracket = true
		case c == ']':
			inBracket = false
		case inBracket:
		case c == '\\':
			i++
		case c == 'd', c == 'D', c == 'y', c == 'Y':
			return true
		}
	}
	return false
}

func (s *spreadsheetReader) wrapErr(err error) error {
	if errors.Is(err, ErrFileTooLarge) {
		return &MalformedFileError{FileName: s.fileName, Reason: "read failed", Err: err}
	}
	return &MalformedFileError{FileName: s.fileName, Reason: "invalid spreadsheet", Err: err}
}

// Close releases the row iterator and the workbook's temporary files.
func (s *spreadsheetReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.rows != nil {
		errs = append(errs, s.rows.Close())
	}
	errs = append(errs, s.file.Close())
	return errors.Join(errs...)
}
