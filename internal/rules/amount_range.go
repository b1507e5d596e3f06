package rules

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kamipay/pixrouter/internal/types"
)

func init() {
	RegisterMatcher("AMOUNT_RANGE", "v1", newAmountRange)
}

// amountRangeMatcher checks a numeric context field against optional lower
// and upper bounds. Comparison happens in decimal space so float artifacts
// never flip a boundary. With coerce "int" the value is read as minor units
// and divided by 10^scale first.
type amountRangeMatcher struct {
	field        string
	coerce       string
	scale        int32
	min, max     *decimal.Decimal
	minInclusive bool
	maxInclusive bool
}

func newAmountRange(cfg map[string]any) (Matcher, error) {
	field, err := cfgOptString(cfg, "field", "amount")
	if err != nil {
		return nil, err
	}
	if field == "" {
		return nil, fmt.Errorf("%w: \"field\" must be a non-empty string", types.ErrInvalidMatcherConfig)
	}
	coerce, err := cfgOptString(cfg, "coerce", "decimal")
	if err != nil {
		return nil, err
	}
	switch coerce {
	case "int", "decimal":
	default:
		return nil, fmt.Errorf("%w: unsupported coerce %q", types.ErrInvalidMatcherConfig, coerce)
	}
	scale, err := cfgOptInt(cfg, "scale", 0)
	if err != nil {
		return nil, err
	}
	if scale < 0 {
		return nil, fmt.Errorf("%w: \"scale\" must be >= 0", types.ErrInvalidMatcherConfig)
	}

	parseBound := func(key string) (*decimal.Decimal, error) {
		raw, ok := cfg[key]
		if !ok || raw == nil {
			return nil, nil
		}
		d, ok := toDecimal(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a valid decimal", types.ErrInvalidMatcherConfig, key)
		}
		return &d, nil
	}
	min, err := parseBound("min")
	if err != nil {
		return nil, err
	}
	max, err := parseBound("max")
	if err != nil {
		return nil, err
	}
	if min != nil && max != nil && max.LessThan(*min) {
		return nil, fmt.Errorf("%w: max < min", types.ErrInvalidMatcherConfig)
	}

	minInclusive, err := cfgOptBool(cfg, "min_inclusive", true)
	if err != nil {
		return nil, err
	}
	maxInclusive, err := cfgOptBool(cfg, "max_inclusive", true)
	if err != nil {
		return nil, err
	}

	return &amountRangeMatcher{
		field:        field,
		coerce:       coerce,
		scale:        int32(scale),
		min:          min,
		max:          max,
		minInclusive: minInclusive,
		maxInclusive: maxInclusive,
	}, nil
}

func (m *amountRangeMatcher) Match(ctx types.Context) bool {
	raw := GetField(ctx, m.field)
	if raw == nil {
		return false
	}

	var amt decimal.Decimal
	if m.coerce == "int" {
		iv, ok := toInt64(raw)
		if !ok {
			return false
		}
		amt = decimal.New(iv, -m.scale)
	} else {
		var ok bool
		amt, ok = toDecimal(raw)
		if !ok {
			return false
		}
	}

	if m.min != nil {
		cmp := amt.Cmp(*m.min)
		if cmp < 0 || (cmp == 0 && !m.minInclusive) {
			return false
		}
	}
	if m.max != nil {
		cmp := amt.Cmp(*m.max)
		if cmp > 0 || (cmp == 0 && !m.maxInclusive) {
			return false
		}
	}
	return true
}

func (m *amountRangeMatcher) Name() string {
	return "AMOUNT_RANGE"
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}
