package core

import "time"

// Normalize converts one raw row into typed values according to schema.
// It never fails as a whole: absent cells become Values with Present unset
// and malformed cells are reported in TypedRow.Errors.
func Normalize(row RawRow, schema []FieldSpec) TypedRow {
	out := TypedRow{
		Line:   row.Line,
		Values: make(map[string]Value, len(schema)),
	}

	for _, spec := range schema {
		cell, ok := row.Cells[spec.Name]
		v, ferr := normalizeCell(spec, cell, ok)
		if ferr != nil {
			out.Errors = append(out.Errors, ferr)
			v = Value{Type: spec.Type}
		}
		out.Values[spec.Name] = v
	}

	return out
}

func normalizeCell(spec FieldSpec, cell Cell, ok bool) (Value, *FieldFormatError) {
	absent := Value{Type: spec.Type}
	if !ok {
		return absent, nil
	}

	if spec.Type == FieldDate && cell.IsDate {
		return Value{Type: spec.Type, Present: true, Date: cell.Date}, nil
	}

	text := CleanCell(cell.Text)
	if text == "" {
		return absent, nil
	}

	switch spec.Type {
	case FieldDate:
		d, err := ParseDate(text)
		if err != nil {
			if d, err = serialDate(cell, text); err != nil {
				return absent, &FieldFormatError{Column: spec.Name, RawValue: cell.Text, Reason: err.Error()}
			}
		}
		return Value{Type: spec.Type, Present: true, Date: d}, nil

	case FieldDecimal:
		d, err := ParseDecimal(text)
		if err != nil {
			return absent, &FieldFormatError{Column: spec.Name, RawValue: cell.Text, Reason: err.Error()}
		}
		return Value{Type: spec.Type, Present: true, Decimal: d}, nil

	default:
		return Value{Type: spec.Type, Present: true, Text: text}, nil
	}
}

// serialDate is the fallback for date cells holding a day serial: the raw
// spreadsheet number when there is one, otherwise the text.
func serialDate(cell Cell, text string) (time.Time, error) {
	if cell.IsNumber {
		return DateFromSerial(cell.Number, cell.Date1904)
	}
	return ParseDateSerial(text)
}
