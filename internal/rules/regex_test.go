package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/kamipay/pixrouter/internal/types"
)

func TestRegexModes(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
		ctx  types.Context
		want bool
	}{
		{
			name: "search matches anywhere",
			cfg:  map[string]any{"type": "REGEX", "field": "pix_key", "pattern": `@kamipay\.io$`},
			ctx:  types.Context{"pix_key": "mati@kamipay.io"},
			want: true,
		},
		{
			name: "match anchors start",
			cfg:  map[string]any{"type": "REGEX", "field": "pix_key", "pattern": `\d{3}`, "mode": "match"},
			ctx:  types.Context{"pix_key": "abc123"},
			want: false,
		},
		{
			name: "match allows trailing content",
			cfg:  map[string]any{"type": "REGEX", "field": "pix_key", "pattern": `\d{3}`, "mode": "match"},
			ctx:  types.Context{"pix_key": "123abc"},
			want: true,
		},
		{
			name: "fullmatch anchors both ends",
			cfg:  map[string]any{"type": "REGEX", "field": "pix_key", "pattern": `\d{11}`, "mode": "fullmatch"},
			ctx:  types.Context{"pix_key": "20123456789"},
			want: true,
		},
		{
			name: "fullmatch rejects partial",
			cfg:  map[string]any{"type": "REGEX", "field": "pix_key", "pattern": `\d{11}`, "mode": "fullmatch"},
			ctx:  types.Context{"pix_key": "20123456789x"},
			want: false,
		},
		{
			name: "ignorecase flag",
			cfg:  map[string]any{"type": "REGEX", "field": "pix_key", "pattern": `@KAMIPAY`, "flags": []any{"IGNORECASE"}},
			ctx:  types.Context{"pix_key": "mati@kamipay.io"},
			want: true,
		},
		{
			name: "ascii flag is a no-op",
			cfg:  map[string]any{"type": "REGEX", "field": "pix_key", "pattern": `^\w+$`, "flags": []any{"ASCII", "IGNORECASE"}},
			ctx:  types.Context{"pix_key": "ABC123"},
			want: true,
		},
		{
			name: "non-string without coercion",
			cfg:  map[string]any{"type": "REGEX", "field": "amount", "pattern": `\d+`},
			ctx:  types.Context{"amount": float64(100)},
			want: false,
		},
		{
			name: "str coercion stringifies",
			cfg:  map[string]any{"type": "REGEX", "field": "amount", "pattern": `^100$`, "coerce": "str"},
			ctx:  types.Context{"amount": float64(100)},
			want: true,
		},
		{
			name: "lower-str coercion",
			cfg:  map[string]any{"type": "REGEX", "field": "pix_key", "pattern": `^evp$`, "coerce": "lower-str"},
			ctx:  types.Context{"pix_key": "EVP"},
			want: true,
		},
		{
			name: "missing field",
			cfg:  map[string]any{"type": "REGEX", "field": "missing", "pattern": `.`},
			ctx:  types.Context{},
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

func TestRegexMaxLen(t *testing.T) {
	m := mustBuild(t, map[string]any{
		"type": "REGEX", "field": "pix_key", "pattern": `a+`, "max_len": float64(10),
	})
	if !m.Match(types.Context{"pix_key": strings.Repeat("a", 10)}) {
		t.Error("string at max_len should match")
	}
	if m.Match(types.Context{"pix_key": strings.Repeat("a", 11)}) {
		t.Error("string over max_len must not match")
	}
}

func TestRegexBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{"missing pattern", map[string]any{"type": "REGEX", "field": "f"}},
		{"bad mode", map[string]any{"type": "REGEX", "field": "f", "pattern": ".", "mode": "find"}},
		{"unknown flag", map[string]any{"type": "REGEX", "field": "f", "pattern": ".", "flags": []any{"LOCALE"}}},
		{"verbose flag unsupported", map[string]any{"type": "REGEX", "field": "f", "pattern": ".", "flags": []any{"VERBOSE"}}},
		{"invalid pattern", map[string]any{"type": "REGEX", "field": "f", "pattern": "("}},
		{"bad coerce", map[string]any{"type": "REGEX", "field": "f", "pattern": ".", "coerce": "int"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildLeaf(tt.cfg); !errors.Is(err, types.ErrInvalidMatcherConfig) {
				t.Errorf("buildLeaf() error = %v, want ErrInvalidMatcherConfig", err)
			}
		})
	}
}
