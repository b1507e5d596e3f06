package rules

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kamipay/pixrouter/internal/types"
)

func TestGetField(t *testing.T) {
	ctx := types.Context{
		"amount": 1500,
		"payer": map[string]any{
			"document": map[string]any{"number": "20123456789"},
			"name":     "Maria",
		},
		"pix_key":  nil,
		"metadata": []any{"a", "b"},
	}

	tests := []struct {
		name string
		path string
		want any
	}{
		{"top level", "amount", 1500},
		{"nested", "payer.name", "Maria"},
		{"deep nested", "payer.document.number", "20123456789"},
		{"missing top level", "currency", nil},
		{"missing nested", "payer.document.issuer", nil},
		{"traversal through scalar", "amount.cents", nil},
		{"traversal through array", "metadata.0", nil},
		{"explicit null", "pix_key", nil},
		{"empty path", "", nil},
		{"empty segment", "payer..name", nil},
		{"trailing dot", "payer.", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetField(ctx, tt.path); got != tt.want {
				t.Errorf("GetField(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestStickyString(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   string
		wantOK bool
	}{
		{"string", "abc", "abc", true},
		{"bool true", true, "true", true},
		{"bool false", false, "false", true},
		{"int", 42, "42", true},
		{"int64", int64(-7), "-7", true},
		{"integral float", float64(42), "42", true},
		{"fractional float", 1.5, "1.5", true},
		{"decimal", decimal.RequireFromString("10.50"), "10.5", true},
		{"map", map[string]any{"a": 1}, "", false},
		{"slice", []any{1}, "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := stickyString(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("stickyString(%v) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("stickyString(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

// A JSON-decoded number and a native int must hash to the same sticky key.
func TestStickyStringJSONIntEquivalence(t *testing.T) {
	native, _ := stickyString(42)
	decoded, _ := stickyString(float64(42))
	if native != decoded {
		t.Errorf("int 42 -> %q but float64 42 -> %q", native, decoded)
	}
}
