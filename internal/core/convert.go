package core

// convert.go turns loosely typed record values into pgtype values.
//
// Record values come straight out of JSON-LD: strings, json.Number, float64,
// bools, nested maps or nil. The mapper never coerces them, so the store does
// it at bind time. Every ToPg* function returns Valid=false for nil, empty or
// unparseable input, letting the database store NULL.

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// dateLayouts are tried in order. JSON-LD datePosted is usually ISO 8601,
// sometimes with a time part.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// CellString renders a record value as the text a column would hold.
// Nested maps and arrays are encoded as JSON. Returns false for nil.
func CellString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		return fmt.Sprint(x), true
	}
}

// ToPgText converts a record value to pgtype.Text.
// The text is bound as is. Returns invalid only if the value is nil.
func ToPgText(v any) pgtype.Text {
	s, ok := CellString(v)
	if !ok {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate converts a record value to pgtype.Date.
// The time-of-day part of a timestamp is dropped.
func ToPgDate(v any) pgtype.Date {
	s, ok := CellString(v)
	if !ok {
		return pgtype.Date{Valid: false}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
		}
	}

	return pgtype.Date{Valid: false}
}

// ToPgNumeric converts a record value to pgtype.Numeric.
// Handles currency symbols and thousands separators in string values.
func ToPgNumeric(v any) pgtype.Numeric {
	s, ok := CellString(v)
	if !ok {
		return pgtype.Numeric{Valid: false}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Numeric{Valid: false}
	}

	// Remove common currency symbols and thousands separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if !numericRegex.MatchString(s) {
		return pgtype.Numeric{Valid: false}
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return pgtype.Numeric{Valid: false}
	}

	return n
}

// ToPgInt4 converts a record value to pgtype.Int4.
// Integral floats ("36.0") are accepted; fractions and overflow are not.
func ToPgInt4(v any) pgtype.Int4 {
	s, ok := CellString(v)
	if !ok {
		return pgtype.Int4{Valid: false}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Int4{Valid: false}
	}

	if i, err := strconv.ParseInt(s, 10, 32); err == nil {
		return pgtype.Int4{Int32: int32(i), Valid: true}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int32(f)) {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(f), Valid: true}
}

// ToPgUUID converts a uuid.UUID to pgtype.UUID.
// Returns invalid for the nil UUID.
func ToPgUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
