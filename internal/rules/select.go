package rules

import (
	"crypto/sha256"
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/google/uuid"

	"github.com/kamipay/pixrouter/internal/types"
)

// Decision reasons.
const (
	ReasonMatched             = "matched"
	ReasonDenied              = "denied"
	ReasonNoRule              = "no_rule"
	ReasonFallback            = "fallback"
	ReasonNoAvailableGateway  = "no_available_gw"
	ReasonFixedUnavailable    = "fixed_unavailable"
	ReasonWeightedUnavailable = "weighted_unavailable"
	ReasonUnknownRoute        = "unknown_route"
)

// Decision reports how a selection was resolved. MatchedRuleID is 0 when no
// rule matched; Reason disambiguates.
type Decision struct {
	MatchedRuleID int64  `json:"matched_rule_id,omitempty"`
	Route         string `json:"route,omitempty"`
	Gateway       string `json:"gateway,omitempty"`
	Reason        string `json:"reason"`
}

// DecisionHook observes every decision. Hooks must not mutate the context;
// a panicking hook is swallowed so observability can never break routing.
type DecisionHook func(dec Decision, ctx types.Context)

// SelectOptions controls one selection.
type SelectOptions struct {
	AllowFallback bool
	OnDecision    DecisionHook
}

// DefaultSelectOptions enables the default-gateway fallback, matching
// production routing. Simulations disable it to expose rule coverage gaps.
func DefaultSelectOptions() SelectOptions {
	return SelectOptions{AllowFallback: true}
}

// Select evaluates the snapshot's rules in priority order and decides a
// gateway for the context. The first enabled rule whose predicate matches
// resolves its action; DENY short-circuits, and an action that cannot produce
// an available gateway falls through to the next rule. When no rule resolves,
// the default gateway is used if allowed and available.
func Select(ctx types.Context, snap *Snapshot, opts SelectOptions) (*types.GatewayConfig, Decision) {
	emit := func(dec Decision) Decision {
		if opts.OnDecision != nil {
			func() {
				defer func() { _ = recover() }()
				opts.OnDecision(dec, ctx)
			}()
		}
		return dec
	}

	for i := range snap.Rules {
		rule := &snap.Rules[i]
		if !rule.Enabled {
			continue
		}
		if !rule.Predicate.Match(ctx) {
			continue
		}
		gw, reason := resolveAction(rule, snap, ctx)
		if reason == ReasonDenied {
			return nil, emit(Decision{MatchedRuleID: rule.ID, Route: RouteDeny, Reason: ReasonDenied})
		}
		if gw != nil {
			return gw, emit(Decision{
				MatchedRuleID: rule.ID,
				Route:         rule.Action.Route,
				Gateway:       gw.Name,
				Reason:        reason,
			})
		}
		// The matched action had no available gateway; keep trying lower
		// priority rules.
	}

	if opts.AllowFallback && snap.DefaultGateway != "" {
		if gw, ok := snap.Gateways[snap.DefaultGateway]; ok && gw.Available() {
			return &gw, emit(Decision{Gateway: gw.Name, Reason: ReasonFallback})
		}
	}

	reason := ReasonNoRule
	for i := range snap.Rules {
		if snap.Rules[i].Enabled {
			reason = ReasonNoAvailableGateway
			break
		}
	}
	return nil, emit(Decision{Reason: reason})
}

// resolveAction turns a matched rule's action into a gateway, or explains why
// it could not.
func resolveAction(rule *CompiledRule, snap *Snapshot, ctx types.Context) (*types.GatewayConfig, string) {
	// The seed isolates sticky buckets between rule sets, versions and rules.
	seed := fmt.Sprintf("%d:%d:%s:%d", snap.RuleSetID, snap.Version, snap.StickySalt, rule.ID)

	switch rule.Action.Route {
	case RouteDeny:
		return nil, ReasonDenied

	case RouteFixed:
		if gw, ok := snap.Gateways[rule.Action.Gateway]; ok && gw.Available() {
			return &gw, ReasonMatched
		}
		return nil, ReasonFixedUnavailable

	case RouteWeighted:
		if gw := pickWeighted(rule.Action, snap.Gateways, ctx, seed); gw != nil {
			return gw, ReasonMatched
		}
		return nil, ReasonWeightedUnavailable

	default:
		return nil, ReasonUnknownRoute
	}
}

// pickWeighted chooses among the currently available weighted gateways. The
// configured weights are filtered by availability, renormalized to 100 and
// walked cumulatively against a deterministic bucket, so a given sticky key
// always lands on the same gateway until the weights or the catalog change.
func pickWeighted(action Action, gateways map[string]types.GatewayConfig, ctx types.Context, seed string) *types.GatewayConfig {
	candidates := make(map[string]int, len(action.Weights))
	for name, w := range action.Weights {
		if gw, ok := gateways[name]; ok && gw.Available() {
			candidates[name] = w
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	norm := normalizeWeights(candidates)
	if len(norm) == 0 {
		return nil
	}

	key := ""
	keyed := false
	if action.StickyBy != "" {
		if v, ok := ctx[action.StickyBy]; ok && v != nil {
			// An empty string is still a sticky key; only absent or
			// non-scalar values lose stickiness.
			key, keyed = stickyString(v)
		}
	}
	if !keyed {
		// No sticky key: stable within this request only.
		key = uuid.NewString()
	}

	bucket := stickyBucket(key, seed)

	names := make([]string, 0, len(norm))
	for name := range norm {
		names = append(names, name)
	}
	sort.Strings(names)

	cumulative := 0
	for _, name := range names {
		cumulative += norm[name]
		if bucket < cumulative {
			gw := gateways[name]
			return &gw
		}
	}
	gw := gateways[names[len(names)-1]]
	return &gw
}

// normalizeWeights clamps negatives, drops zeros and rescales the remainder
// to sum exactly 100. Rescaling walks names in sorted order, rounding half to
// even, and assigns the last entry the remainder, absorbing rounding drift
// deterministically.
func normalizeWeights(weights map[string]int) map[string]int {
	cleaned := make(map[string]int, len(weights))
	total := 0
	for name, w := range weights {
		if w > 0 {
			cleaned[name] = w
			total += w
		}
	}
	if total == 0 {
		return nil
	}
	if total == 100 {
		return cleaned
	}

	names := make([]string, 0, len(cleaned))
	for name := range cleaned {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]int, len(cleaned))
	acc := 0
	for i, name := range names {
		if i == len(names)-1 {
			out[name] = 100 - acc
			break
		}
		pct := int(math.RoundToEven(float64(cleaned[name]) * 100.0 / float64(total)))
		out[name] = pct
		acc += pct
	}
	return out
}

// stickyBucket maps (key, seed) to a stable bucket in [0, 100). The full
// SHA-256 digest is reduced mod 100, so bucket boundaries stay aligned with
// other implementations of the same scheme.
func stickyBucket(key, seed string) int {
	sum := sha256.Sum256([]byte(key + ":" + seed))
	n := new(big.Int).SetBytes(sum[:])
	return int(n.Mod(n, big.NewInt(100)).Int64())
}
