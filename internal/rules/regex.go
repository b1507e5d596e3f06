package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kamipay/pixrouter/internal/types"
)

func init() {
	RegisterMatcher("REGEX", "v1", newRegex)
}

// regexMatcher tests a context field against a pre-compiled RE2 pattern.
// Anchoring mode is baked into the pattern at build time: "search" matches
// anywhere, "match" anchors the start, "fullmatch" anchors both ends.
type regexMatcher struct {
	field  string
	coerce string
	maxLen int
	// engineTimeout is accepted for config compatibility. RE2 runs in linear
	// time, so the bound is recorded but never enforced.
	engineTimeout time.Duration
	re            *regexp.Regexp
}

var regexFlags = map[string]string{
	"IGNORECASE": "i",
	"MULTILINE":  "m",
	"DOTALL":     "s",
}

func newRegex(cfg map[string]any) (Matcher, error) {
	field, err := cfgString(cfg, "field")
	if err != nil {
		return nil, err
	}
	pattern, err := cfgString(cfg, "pattern")
	if err != nil {
		return nil, err
	}
	mode, err := cfgOptString(cfg, "mode", "search")
	if err != nil {
		return nil, err
	}
	coerce, err := cfgOptString(cfg, "coerce", "")
	if err != nil {
		return nil, err
	}
	switch coerce {
	case "", "str", "lower-str":
	default:
		return nil, fmt.Errorf("%w: unsupported coerce %q", types.ErrInvalidMatcherConfig, coerce)
	}
	maxLen, err := cfgOptInt(cfg, "max_len", 0)
	if err != nil {
		return nil, err
	}
	if maxLen < 0 {
		return nil, fmt.Errorf("%w: \"max_len\" must be >= 0", types.ErrInvalidMatcherConfig)
	}
	timeoutMs, err := cfgOptInt(cfg, "engine_timeout_ms", 0)
	if err != nil {
		return nil, err
	}

	var inline string
	if rawFlags, present := cfg["flags"]; present && rawFlags != nil {
		list, ok := rawFlags.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: \"flags\" must be an array", types.ErrInvalidMatcherConfig)
		}
		for _, raw := range list {
			name, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("%w: flags must be strings", types.ErrInvalidMatcherConfig)
			}
			upper := strings.ToUpper(name)
			// Perl character classes are ASCII-only here already, so ASCII
			// is accepted as a no-op. VERBOSE has no equivalent and fails.
			if upper == "ASCII" {
				continue
			}
			letter, ok := regexFlags[upper]
			if !ok {
				return nil, fmt.Errorf("%w: unsupported regex flag %q", types.ErrInvalidMatcherConfig, name)
			}
			if !strings.Contains(inline, letter) {
				inline += letter
			}
		}
	}

	var anchored string
	switch mode {
	case "search":
		anchored = pattern
	case "match":
		anchored = `\A(?:` + pattern + `)`
	case "fullmatch":
		anchored = `\A(?:` + pattern + `)\z`
	default:
		return nil, fmt.Errorf("%w: unsupported mode %q", types.ErrInvalidMatcherConfig, mode)
	}
	if inline != "" {
		anchored = "(?" + inline + ")" + anchored
	}

	re, err := regexp.Compile(anchored)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidMatcherConfig, err)
	}

	return &regexMatcher{
		field:         field,
		coerce:        coerce,
		maxLen:        maxLen,
		engineTimeout: time.Duration(timeoutMs) * time.Millisecond,
		re:            re,
	}, nil
}

func (m *regexMatcher) Match(ctx types.Context) bool {
	v := GetField(ctx, m.field)
	if v == nil {
		return false
	}

	var s string
	switch m.coerce {
	case "str":
		str, ok := stickyString(v)
		if !ok {
			return false
		}
		s = str
	case "lower-str":
		str, ok := stickyString(v)
		if !ok {
			return false
		}
		s = strings.ToLower(str)
	default:
		str, ok := v.(string)
		if !ok {
			return false
		}
		s = str
	}

	if m.maxLen > 0 && len(s) > m.maxLen {
		return false
	}
	return m.re.MatchString(s)
}

func (m *regexMatcher) Name() string {
	return "REGEX"
}
