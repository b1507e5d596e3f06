package rules

import (
	"fmt"
	"log/slog"

	"github.com/kamipay/pixrouter/internal/types"
)

// CompileOptions controls predicate compilation. With Trace set, every node
// is wrapped so evaluations log path, result and timing at debug level.
type CompileOptions struct {
	Trace          bool
	Logger         *slog.Logger
	CaptureCtxKeys bool
}

// CompilePredicate compiles a JSON predicate tree into an executable matcher.
// Composites "all", "any" and "none" nest arbitrarily; same-kind children are
// flattened and constants folded, so the compiled form can be smaller than
// the tree. Leaves are dispatched through the matcher registry. All
// validation happens here; the returned matcher never fails at evaluation.
func CompilePredicate(tree map[string]any, opts CompileOptions) (Matcher, error) {
	return compileNode(tree, "ROOT", opts)
}

func compileNode(tree map[string]any, path string, opts CompileOptions) (Matcher, error) {
	if len(tree) == 0 {
		return nil, fmt.Errorf("[%s] %w: expected a non-empty object", path, types.ErrInvalidPredicate)
	}

	composites := 0
	for _, key := range []string{"all", "any", "none"} {
		if _, ok := tree[key]; ok {
			composites++
		}
	}
	if composites > 1 {
		return nil, fmt.Errorf("[%s] %w: ambiguous composite, use only one of all/any/none", path, types.ErrInvalidPredicate)
	}

	if raw, ok := tree["all"]; ok {
		children, err := compileChildren(raw, path, "ALL", opts)
		if err != nil {
			return nil, err
		}
		return wrapTrace(foldAll(flattenAll(children)), path, opts), nil
	}

	if raw, ok := tree["any"]; ok {
		children, err := compileChildren(raw, path, "ANY", opts)
		if err != nil {
			return nil, err
		}
		return wrapTrace(foldAny(flattenAny(children)), path, opts), nil
	}

	if raw, ok := tree["none"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("[%s] %w: composite \"none\" must be an array", path, types.ErrInvalidPredicate)
		}
		// none([]) = not any([]) = true
		if len(list) == 0 {
			return wrapTrace(ConstTrue, path, opts), nil
		}
		anyNode, err := compileNode(map[string]any{"any": list}, path+".NONE.ANY", opts)
		if err != nil {
			return nil, err
		}
		var node Matcher
		switch anyNode {
		case ConstTrue:
			node = ConstFalse
		case ConstFalse:
			node = ConstTrue
		default:
			node = &notMatcher{child: anyNode}
		}
		return wrapTrace(node, path, opts), nil
	}

	leaf, err := buildLeaf(tree)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", path, err)
	}
	return wrapTrace(leaf, path, opts), nil
}

func compileChildren(raw any, path, kind string, opts CompileOptions) ([]Matcher, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("[%s] %w: composite %q must be an array", path, types.ErrInvalidPredicate, kind)
	}
	children := make([]Matcher, 0, len(list))
	for i, rawChild := range list {
		childTree, ok := rawChild.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("[%s.%s[%d]] %w: expected an object", path, kind, i, types.ErrInvalidPredicate)
		}
		child, err := compileNode(childTree, fmt.Sprintf("%s.%s[%d]", path, kind, i), opts)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// flattenAll collapses nested ALL nodes into their parent. Trace wrappers
// block flattening, which keeps per-node logging intact when tracing.
func flattenAll(children []Matcher) []Matcher {
	flat := make([]Matcher, 0, len(children))
	for _, ch := range children {
		if inner, ok := ch.(*allMatcher); ok {
			flat = append(flat, inner.children...)
		} else {
			flat = append(flat, ch)
		}
	}
	return flat
}

func flattenAny(children []Matcher) []Matcher {
	flat := make([]Matcher, 0, len(children))
	for _, ch := range children {
		if inner, ok := ch.(*anyMatcher); ok {
			flat = append(flat, inner.children...)
		} else {
			flat = append(flat, ch)
		}
	}
	return flat
}

func foldAll(children []Matcher) Matcher {
	kept := make([]Matcher, 0, len(children))
	for _, ch := range children {
		if ch == ConstFalse {
			return ConstFalse
		}
		if ch == ConstTrue {
			continue
		}
		kept = append(kept, ch)
	}
	switch len(kept) {
	case 0:
		return ConstTrue
	case 1:
		return kept[0]
	default:
		return &allMatcher{children: kept}
	}
}

func foldAny(children []Matcher) Matcher {
	kept := make([]Matcher, 0, len(children))
	for _, ch := range children {
		if ch == ConstTrue {
			return ConstTrue
		}
		if ch == ConstFalse {
			continue
		}
		kept = append(kept, ch)
	}
	switch len(kept) {
	case 0:
		return ConstFalse
	case 1:
		return kept[0]
	default:
		return &anyMatcher{children: kept}
	}
}

func wrapTrace(node Matcher, path string, opts CompileOptions) Matcher {
	if !opts.Trace {
		return node
	}
	return newTrace(node, path, opts.Logger, opts.CaptureCtxKeys)
}
