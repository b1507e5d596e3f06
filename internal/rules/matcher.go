// Package rules implements the pixrouter rule engine: compiled leaf matchers,
// the predicate tree compiler, the rule-set compiler, and the selector hot
// path. Compilation validates eagerly and returns errors; evaluation is
// infallible and returns only booleans.
package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kamipay/pixrouter/internal/types"
)

// Matcher is a compiled predicate over a selection context. Implementations
// must be safe for concurrent use and must never panic at evaluation time.
type Matcher interface {
	Match(ctx types.Context) bool
	Name() string
}

type constMatcher struct {
	result bool
}

// ConstTrue and ConstFalse are the identity elements produced by constant
// folding. They are comparable singletons; the compiler tests against them
// with ==.
var (
	ConstTrue  Matcher = constMatcher{result: true}
	ConstFalse Matcher = constMatcher{result: false}
)

func (m constMatcher) Match(types.Context) bool {
	return m.result
}

func (m constMatcher) Name() string {
	if m.result {
		return "CONST_TRUE"
	}
	return "CONST_FALSE"
}

type allMatcher struct {
	children []Matcher
}

func (m *allMatcher) Match(ctx types.Context) bool {
	for _, c := range m.children {
		if !c.Match(ctx) {
			return false
		}
	}
	return true
}

func (m *allMatcher) Name() string {
	return fmt.Sprintf("ALL(%d)", len(m.children))
}

type anyMatcher struct {
	children []Matcher
}

func (m *anyMatcher) Match(ctx types.Context) bool {
	for _, c := range m.children {
		if c.Match(ctx) {
			return true
		}
	}
	return false
}

func (m *anyMatcher) Name() string {
	return fmt.Sprintf("ANY(%d)", len(m.children))
}

type notMatcher struct {
	child Matcher
}

func (m *notMatcher) Match(ctx types.Context) bool {
	return !m.child.Match(ctx)
}

func (m *notMatcher) Name() string {
	return "NONE(" + m.child.Name() + ")"
}

// MatcherFactory builds a matcher from a decoded leaf config. Factories
// validate eagerly so bad configs surface at compile time.
type MatcherFactory func(cfg map[string]any) (Matcher, error)

type factoryKey struct {
	typ  string
	impl string
}

var factories = map[factoryKey]MatcherFactory{}

// RegisterMatcher registers a factory under a (type, impl) pair. Duplicate
// registration panics; registration happens from init functions only.
func RegisterMatcher(typ, impl string, f MatcherFactory) {
	key := factoryKey{typ: typ, impl: impl}
	if _, dup := factories[key]; dup {
		panic(fmt.Sprintf("rules: duplicate matcher registration %s/%s", typ, impl))
	}
	factories[key] = f
}

func buildLeaf(cfg map[string]any) (Matcher, error) {
	typ, ok := cfg["type"].(string)
	if !ok || typ == "" {
		return nil, fmt.Errorf("%w: leaf requires a string \"type\"", types.ErrInvalidPredicate)
	}
	impl := "v1"
	if raw, present := cfg["impl"]; present {
		impl, ok = raw.(string)
		if !ok || impl == "" {
			return nil, fmt.Errorf("%w: \"impl\" must be a non-empty string", types.ErrInvalidMatcherConfig)
		}
	}
	f, ok := factories[factoryKey{typ: typ, impl: impl}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrUnknownMatcher, typ, impl)
	}
	m, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", typ, impl, err)
	}
	return m, nil
}

// Config field helpers shared by the leaf factories. JSON decoding hands
// numbers over as float64, so integer fields accept integral floats.

func cfgString(cfg map[string]any, key string) (string, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %q is required", types.ErrInvalidMatcherConfig, key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", types.ErrInvalidMatcherConfig, key)
	}
	return s, nil
}

func cfgOptString(cfg map[string]any, key, def string) (string, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", types.ErrInvalidMatcherConfig, key)
	}
	return s, nil
}

func cfgOptBool(cfg map[string]any, key string, def bool) (bool, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q must be a boolean", types.ErrInvalidMatcherConfig, key)
	}
	return b, nil
}

func cfgOptInt(cfg map[string]any, key string, def int) (int, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return def, nil
	}
	n, ok := toInt64(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %q must be an integer", types.ErrInvalidMatcherConfig, key)
	}
	return int(n), nil
}

// toInt64 coerces ints, integral floats, numeric strings and json.Numbers to
// int64. Non-integral values fail.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case float32:
		return toInt64(float64(n))
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
