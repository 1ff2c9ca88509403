package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ----------------------------------------------------------------------------
// CellString Tests
// ----------------------------------------------------------------------------

func TestCellString(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{name: "nil", input: nil, wantOK: false},
		{name: "string", input: "Engineer", want: "Engineer", wantOK: true},
		{name: "json number kept verbatim", input: json.Number("1.50"), want: "1.50", wantOK: true},
		{name: "integral float", input: 36.0, want: "36", wantOK: true},
		{name: "fractional float", input: 0.25, want: "0.25", wantOK: true},
		{name: "int", input: 7, want: "7", wantOK: true},
		{name: "int64", input: int64(-3), want: "-3", wantOK: true},
		{name: "bool", input: true, want: "true", wantOK: true},
		{name: "map encoded as json", input: map[string]any{"a": "b"}, want: `{"a":"b"}`, wantOK: true},
		{name: "array encoded as json", input: []any{"x", 1.0}, want: `["x",1]`, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CellString(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("CellString(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("CellString(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToPgText Tests
// ----------------------------------------------------------------------------

func TestToPgText(t *testing.T) {
	tests := []struct {
		name      string
		input     any
		wantValid bool
		want      string
	}{
		{name: "plain", input: "Acme", wantValid: true, want: "Acme"},
		{name: "surrounding space kept", input: "  Acme  ", wantValid: true, want: "  Acme  "},
		{name: "nil", input: nil, wantValid: false},
		{name: "empty kept", input: "", wantValid: true, want: ""},
		{name: "whitespace only kept", input: " \t ", wantValid: true, want: " \t "},
		{name: "number", input: json.Number("42"), wantValid: true, want: "42"},
		{name: "nested object", input: map[string]any{"k": 1.0}, wantValid: true, want: `{"k":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgText(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToPgText(%v).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if got.String != tt.want {
				t.Errorf("ToPgText(%v) = %q, want %q", tt.input, got.String, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToPgNumeric Tests
// ----------------------------------------------------------------------------

func TestToPgNumeric(t *testing.T) {
	tests := []struct {
		name      string
		input     any
		wantValid bool
		want      float64
	}{
		// Valid
		{name: "integer string", input: "123", wantValid: true, want: 123},
		{name: "negative", input: "-456", wantValid: true, want: -456},
		{name: "decimal", input: "123.45", wantValid: true, want: 123.45},
		{name: "leading decimal point", input: ".99", wantValid: true, want: 0.99},
		{name: "dollar and separators", input: "$1,234.56", wantValid: true, want: 1234.56},
		{name: "euro sign", input: "€1234.56", wantValid: true, want: 1234.56},
		{name: "pound sign", input: "£1234.56", wantValid: true, want: 1234.56},
		{name: "surrounded by whitespace", input: "  123.45  ", wantValid: true, want: 123.45},
		{name: "explicit positive sign", input: "+123", wantValid: true, want: 123},
		{name: "json number", input: json.Number("85000"), wantValid: true, want: 85000},
		{name: "float", input: 52.5, wantValid: true, want: 52.5},

		// Invalid
		{name: "nil", input: nil, wantValid: false},
		{name: "empty string", input: "", wantValid: false},
		{name: "only whitespace", input: "   ", wantValid: false},
		{name: "alphabetic", input: "abc", wantValid: false},
		{name: "mixed alphanumeric", input: "12abc34", wantValid: false},
		{name: "only currency symbol", input: "$", wantValid: false},
		{name: "multiple decimal points", input: "12.34.56", wantValid: false},
		{name: "double negative", input: "--123", wantValid: false},
		{name: "NaN", input: "NaN", wantValid: false},
		{name: "Infinity", input: "Infinity", wantValid: false},
		{name: "object", input: map[string]any{"value": 1.0}, wantValid: false},
		{name: "bool", input: true, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToPgNumeric(tt.input)

			if result.Valid != tt.wantValid {
				t.Fatalf("ToPgNumeric(%v).Valid = %v, want %v", tt.input, result.Valid, tt.wantValid)
			}
			if !tt.wantValid {
				return
			}

			f, err := result.Float64Value()
			if err != nil {
				t.Fatalf("ToPgNumeric(%v) Float64Value error: %v", tt.input, err)
			}
			if !f.Valid || f.Float64 != tt.want {
				t.Errorf("ToPgNumeric(%v) = %v, want %v", tt.input, f.Float64, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToPgInt4 Tests
// ----------------------------------------------------------------------------

func TestToPgInt4(t *testing.T) {
	tests := []struct {
		name      string
		input     any
		wantValid bool
		want      int32
	}{
		{name: "integer string", input: "36", wantValid: true, want: 36},
		{name: "json number", input: json.Number("24"), wantValid: true, want: 24},
		{name: "integral json number", input: json.Number("36.0"), wantValid: true, want: 36},
		{name: "integral float", input: 12.0, wantValid: true, want: 12},
		{name: "negative", input: "-5", wantValid: true, want: -5},
		{name: "padded", input: " 7 ", wantValid: true, want: 7},
		{name: "fraction", input: "1.5", wantValid: false},
		{name: "overflow", input: "99999999999", wantValid: false},
		{name: "text", input: "three", wantValid: false},
		{name: "nil", input: nil, wantValid: false},
		{name: "empty", input: "", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgInt4(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToPgInt4(%v).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if got.Int32 != tt.want {
				t.Errorf("ToPgInt4(%v) = %d, want %d", tt.input, got.Int32, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ToPgDate Tests
// ----------------------------------------------------------------------------

func TestToPgDate(t *testing.T) {
	tests := []struct {
		name      string
		input     any
		wantValid bool
		want      string // YYYY-MM-DD
	}{
		{name: "iso date", input: "2024-01-15", wantValid: true, want: "2024-01-15"},
		{name: "rfc3339 utc", input: "2024-01-15T10:30:00Z", wantValid: true, want: "2024-01-15"},
		{name: "rfc3339 offset keeps local date", input: "2024-01-15T23:30:00+05:00", wantValid: true, want: "2024-01-15"},
		{name: "no zone", input: "2024-01-15T10:30:00", wantValid: true, want: "2024-01-15"},
		{name: "space separated", input: "2024-01-15 10:30:00", wantValid: true, want: "2024-01-15"},
		{name: "slashes", input: "2024/01/15", wantValid: true, want: "2024-01-15"},
		{name: "us format", input: "1/15/2024", wantValid: true, want: "2024-01-15"},
		{name: "month name", input: "Jan 15, 2024", wantValid: true, want: "2024-01-15"},
		{name: "padded", input: "  2024-01-15 ", wantValid: true, want: "2024-01-15"},
		{name: "nil", input: nil, wantValid: false},
		{name: "empty", input: "", wantValid: false},
		{name: "garbage", input: "last tuesday", wantValid: false},
		{name: "impossible date", input: "2024-02-30", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPgDate(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ToPgDate(%v).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if !tt.wantValid {
				return
			}
			if s := got.Time.Format("2006-01-02"); s != tt.want {
				t.Errorf("ToPgDate(%v) = %s, want %s", tt.input, s, tt.want)
			}
			if got.Time.Location() != time.UTC {
				t.Errorf("ToPgDate(%v) location = %v, want UTC", tt.input, got.Time.Location())
			}
		})
	}
}

func TestToPgUUID(t *testing.T) {
	if got := ToPgUUID(uuid.Nil); got.Valid {
		t.Error("ToPgUUID(uuid.Nil) should be invalid")
	}

	id := uuid.New()
	got := ToPgUUID(id)
	if !got.Valid {
		t.Fatal("ToPgUUID() returned invalid")
	}
	if uuid.UUID(got.Bytes) != id {
		t.Errorf("ToPgUUID() bytes = %x, want %x", got.Bytes, id)
	}
}
