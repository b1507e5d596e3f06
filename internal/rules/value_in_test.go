package rules

import (
	"errors"
	"testing"

	"github.com/kamipay/pixrouter/internal/types"
)

func mustBuild(t *testing.T, cfg map[string]any) Matcher {
	t.Helper()
	m, err := buildLeaf(cfg)
	if err != nil {
		t.Fatalf("buildLeaf(%v): %v", cfg, err)
	}
	return m
}

func TestValueInMatch(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
		ctx  types.Context
		want bool
	}{
		{
			name: "int coercion matches json float",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "api_user_id", "values": []any{float64(42)}, "coerce": "int"},
			ctx:  types.Context{"api_user_id": float64(42)},
			want: true,
		},
		{
			name: "int coercion matches string value",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "api_user_id", "values": []any{float64(42)}, "coerce": "int"},
			ctx:  types.Context{"api_user_id": "42"},
			want: true,
		},
		{
			name: "int coercion rejects fractional",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "api_user_id", "values": []any{float64(42)}, "coerce": "int"},
			ctx:  types.Context{"api_user_id": 42.5},
			want: false,
		},
		{
			name: "str coercion stringifies numbers",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "pix_key", "values": []any{"12345"}, "coerce": "str"},
			ctx:  types.Context{"pix_key": float64(12345)},
			want: true,
		},
		{
			name: "lower-str is case insensitive",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "pix_key", "values": []any{"Mati@Kamipay.IO"}, "coerce": "lower-str"},
			ctx:  types.Context{"pix_key": "mati@kamipay.io"},
			want: true,
		},
		{
			name: "no coercion exact string",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "pix_key_type", "values": []any{"EMAIL", "PHONE"}},
			ctx:  types.Context{"pix_key_type": "EMAIL"},
			want: true,
		},
		{
			name: "no coercion json float equals int value",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "code", "values": []any{float64(7)}},
			ctx:  types.Context{"code": 7},
			want: true,
		},
		{
			name: "no coercion mismatched types",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "code", "values": []any{"7"}},
			ctx:  types.Context{"code": float64(7)},
			want: false,
		},
		{
			name: "missing field",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "missing", "values": []any{"x"}},
			ctx:  types.Context{},
			want: false,
		},
		{
			name: "dotted field path",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "payer.document.number", "values": []any{"201"}, "coerce": "str"},
			ctx:  types.Context{"payer": map[string]any{"document": map[string]any{"number": "201"}}},
			want: true,
		},
		{
			name: "composite context value never matches",
			cfg:  map[string]any{"type": "VALUE_IN", "field": "payer", "values": []any{"x"}},
			ctx:  types.Context{"payer": map[string]any{"name": "x"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustBuild(t, tt.cfg)
			if got := m.Match(tt.ctx); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValueInBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{"missing field", map[string]any{"type": "VALUE_IN", "values": []any{"x"}}},
		{"missing values", map[string]any{"type": "VALUE_IN", "field": "f"}},
		{"empty values", map[string]any{"type": "VALUE_IN", "field": "f", "values": []any{}}},
		{"bad coerce", map[string]any{"type": "VALUE_IN", "field": "f", "values": []any{"x"}, "coerce": "float"}},
		{"uncoercible value", map[string]any{"type": "VALUE_IN", "field": "f", "values": []any{"abc"}, "coerce": "int"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildLeaf(tt.cfg); !errors.Is(err, types.ErrInvalidMatcherConfig) {
				t.Errorf("buildLeaf() error = %v, want ErrInvalidMatcherConfig", err)
			}
		})
	}
}

func TestUnknownMatcherType(t *testing.T) {
	_, err := buildLeaf(map[string]any{"type": "NOPE", "field": "f"})
	if !errors.Is(err, types.ErrUnknownMatcher) {
		t.Errorf("buildLeaf() error = %v, want ErrUnknownMatcher", err)
	}
	_, err = buildLeaf(map[string]any{"type": "VALUE_IN", "impl": "v9", "field": "f", "values": []any{"x"}})
	if !errors.Is(err, types.ErrUnknownMatcher) {
		t.Errorf("buildLeaf() with impl v9 error = %v, want ErrUnknownMatcher", err)
	}
}
