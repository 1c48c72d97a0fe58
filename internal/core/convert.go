package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DateLayouts are tried in order; the first layout that parses the whole
// value wins. Day-first layouts come before any single-digit variant.
var DateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"2/1/2006",
	"2-1-2006",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
}

// maxDateSerial is 9999-12-31, the last day a spreadsheet can represent.
const maxDateSerial = 2958465

var (
	errInvalidDate    = errors.New("invalid date")
	errInvalidDecimal = errors.New("invalid decimal")
)

// CleanCell trims whitespace and strips spreadsheet export wrappers such as
// ="00123" and surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// ParseDate parses s with DateLayouts and returns the calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errInvalidDate
	}
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return calendarDate(t), nil
		}
	}
	return time.Time{}, errInvalidDate
}

// ParseDateSerial reads s as a spreadsheet day serial in the 1900 date
// system, as written by tools that export dates as plain numbers.
func ParseDateSerial(s string) (time.Time, error) {
	serial, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return DateFromSerial(serial, false)
}

// DateFromSerial converts a day serial to a calendar date. Fractions are
// times of day and are dropped.
func DateFromSerial(serial float64, date1904 bool) (time.Time, error) {
	if math.IsNaN(serial) || serial < 1 || serial > maxDateSerial {
		return time.Time{}, errInvalidDate
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return time.Time{}, errInvalidDate
	}
	return calendarDate(t), nil
}

// calendarDate drops the clock and location, keeping the wall-clock date.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Accepted numbers stay well inside Postgres NUMERIC and cheap to format.
const (
	maxDecimalDigits   = 1000
	maxDecimalExponent = 1000
)

// currencyMarks may lead or trail a number. Other letters make it invalid.
var currencyMarks = []string{"US$", "R$", "USD", "EUR", "BRL"}

// ParseDecimal parses numbers written with either '.' or ',' as the decimal
// separator. Currency marks, spaces and symbols are stripped first; letters
// and a minus sign after the first digit are not.
//
// When both separators appear, the right-most one is the decimal separator
// and the other is a thousands separator ("1.234,56", "1,234.56"). When only
// one kind appears it is a decimal separator if it occurs once ("25,50") and
// a thousands separator if it repeats ("1,234,567").
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 2*maxDecimalDigits {
		return decimal.Zero, errInvalidDecimal
	}

	// Plain and scientific forms, including raw spreadsheet values.
	if d, err := decimal.NewFromString(s); err == nil {
		return checkDecimalRange(d)
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
	}

	var b strings.Builder
	for _, r := range stripCurrency(s) {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0 && !negative:
			negative = true
		case r == '-', unicode.IsLetter(r):
			return decimal.Zero, errInvalidDecimal
		}
	}
	digits := b.String()
	if strings.IndexFunc(digits, func(r rune) bool { return r >= '0' && r <= '9' }) < 0 {
		return decimal.Zero, errInvalidDecimal
	}

	digits = normalizeSeparators(digits)
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, errInvalidDecimal
	}
	if negative {
		d = d.Neg()
	}
	return checkDecimalRange(d)
}

func checkDecimalRange(d decimal.Decimal) (decimal.Decimal, error) {
	exp := d.Exponent()
	if exp > maxDecimalExponent || exp < -maxDecimalExponent {
		return decimal.Zero, errInvalidDecimal
	}
	if d.NumDigits() > maxDecimalDigits {
		return decimal.Zero, errInvalidDecimal
	}
	return d, nil
}

// stripCurrency removes one currency mark from either end of s.
func stripCurrency(s string) string {
	s = strings.Trim(s, "() ")
	for _, mark := range currencyMarks {
		n := len(mark)
		if len(s) < n {
			continue
		}
		if strings.EqualFold(s[:n], mark) {
			return s[n:]
		}
		if strings.EqualFold(s[len(s)-n:], mark) {
			return s[:len(s)-n]
		}
	}
	return s
}

// normalizeSeparators rewrites digits so that '.' is the only separator left.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}
