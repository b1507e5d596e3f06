package rules

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kamipay/pixrouter/internal/types"
)

// GetField resolves a dotted path against a selection context. Traversal
// descends string-keyed maps only; a missing key, a non-map intermediate, or
// an empty path segment yields nil. Missing and explicit null are
// indistinguishable to matchers, which treat nil as no-match.
func GetField(ctx types.Context, path string) any {
	if path == "" {
		return nil
	}
	var cur any = map[string]any(ctx)
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil
		}
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case types.Context:
		return m, true
	default:
		return nil, false
	}
}

// stickyString renders a scalar in its canonical string form for sticky-key
// hashing. Integral floats render without a fractional part so a JSON-decoded
// 42 hashes the same as a native int 42. Composite values report ok=false.
func stickyString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case int:
		return strconv.FormatInt(int64(s), 10), true
	case int32:
		return strconv.FormatInt(int64(s), 10), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10), true
		}
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case float32:
		return stickyString(float64(s))
	case json.Number:
		return s.String(), true
	case decimal.Decimal:
		return s.String(), true
	default:
		return "", false
	}
}
