package rules

import (
	"fmt"
	"strings"

	"github.com/kamipay/pixrouter/internal/types"
)

func init() {
	RegisterMatcher("VALUE_IN", "v1", newValueIn)
}

// valueInMatcher tests membership of a context field in a fixed set. The set
// is coerced once at build time; only the context value is coerced per
// evaluation.
type valueInMatcher struct {
	field  string
	coerce string
	values map[any]struct{}
}

func newValueIn(cfg map[string]any) (Matcher, error) {
	field, err := cfgString(cfg, "field")
	if err != nil {
		return nil, err
	}
	coerce, err := cfgOptString(cfg, "coerce", "")
	if err != nil {
		return nil, err
	}
	switch coerce {
	case "", "int", "str", "lower-str":
	default:
		return nil, fmt.Errorf("%w: unsupported coerce %q", types.ErrInvalidMatcherConfig, coerce)
	}

	rawValues, ok := cfg["values"].([]any)
	if !ok || len(rawValues) == 0 {
		return nil, fmt.Errorf("%w: \"values\" must be a non-empty array", types.ErrInvalidMatcherConfig)
	}

	values := make(map[any]struct{}, len(rawValues))
	for i, raw := range rawValues {
		key, ok := coerceValue(raw, coerce)
		if !ok {
			return nil, fmt.Errorf("%w: values[%d] not coercible with %q", types.ErrInvalidMatcherConfig, i, coerce)
		}
		values[key] = struct{}{}
	}

	return &valueInMatcher{field: field, coerce: coerce, values: values}, nil
}

func (m *valueInMatcher) Match(ctx types.Context) bool {
	v := GetField(ctx, m.field)
	if v == nil {
		return false
	}
	key, ok := coerceValue(v, m.coerce)
	if !ok {
		return false
	}
	_, hit := m.values[key]
	return hit
}

func (m *valueInMatcher) Name() string {
	return "VALUE_IN"
}

// coerceValue maps a scalar into the comparison domain selected by coerce.
// With no coercion, numeric values collapse to a canonical form so a JSON
// float 42 equals an int 42.
func coerceValue(v any, coerce string) (any, bool) {
	switch coerce {
	case "int":
		return asComparableInt(v)
	case "str":
		return stickyString(v)
	case "lower-str":
		s, ok := stickyString(v)
		if !ok {
			return nil, false
		}
		return strings.ToLower(s), true
	default:
		return canonScalar(v)
	}
}

func asComparableInt(v any) (any, bool) {
	n, ok := toInt64(v)
	if !ok {
		return nil, false
	}
	return n, true
}

// canonScalar normalizes scalars for untyped equality: all integer kinds and
// integral floats become int64, everything else keeps its type. Composites
// are not comparable and never match.
func canonScalar(v any) (any, bool) {
	switch s := v.(type) {
	case string, bool:
		return s, true
	case int:
		return int64(s), true
	case int32:
		return int64(s), true
	case int64:
		return s, true
	case float64:
		if s == float64(int64(s)) {
			return int64(s), true
		}
		return s, true
	case float32:
		return canonScalar(float64(s))
	default:
		return nil, false
	}
}
