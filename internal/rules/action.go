package rules

import (
	"fmt"

	"github.com/kamipay/pixrouter/internal/types"
)

// Action routes.
const (
	RouteFixed    = "FIXED"
	RouteWeighted = "WEIGHTED"
	RouteDeny     = "DENY"
)

// Action is a validated routing action. Weights are kept as configured;
// normalization happens per selection over the gateways available at that
// moment.
type Action struct {
	Route      string
	Gateway    string         // FIXED target
	Weights    map[string]int // WEIGHTED percentages
	StickyBy   string         // WEIGHTED optional sticky context key
	ReasonCode string         // DENY optional
}

// parseAction validates a raw action document against the gateway catalog.
// FIXED must name a known gateway, WEIGHTED must carry known gateways with
// non-negative integer weights and at least one positive, DENY takes an
// optional string reason code.
func parseAction(raw map[string]any, gateways map[string]types.GatewayConfig) (Action, error) {
	route, _ := raw["route"].(string)
	switch route {
	case RouteFixed:
		gw, ok := raw["gateway"].(string)
		if !ok || gw == "" {
			return Action{}, fmt.Errorf("%w: FIXED requires a string \"gateway\"", types.ErrInvalidAction)
		}
		if _, known := gateways[gw]; !known {
			return Action{}, fmt.Errorf("%w: FIXED %w %q", types.ErrInvalidAction, types.ErrUnknownGateway, gw)
		}
		return Action{Route: RouteFixed, Gateway: gw}, nil

	case RouteWeighted:
		rawWeights, ok := raw["weights"].(map[string]any)
		if !ok || len(rawWeights) == 0 {
			return Action{}, fmt.Errorf("%w: WEIGHTED requires a non-empty \"weights\" object", types.ErrInvalidAction)
		}
		weights := make(map[string]int, len(rawWeights))
		anyPositive := false
		for name, pct := range rawWeights {
			if _, known := gateways[name]; !known {
				return Action{}, fmt.Errorf("%w: WEIGHTED %w %q", types.ErrInvalidAction, types.ErrUnknownGateway, name)
			}
			iv, ok := toInt64(pct)
			if !ok {
				return Action{}, fmt.Errorf("%w: WEIGHTED weight for %q is not an integer", types.ErrInvalidAction, name)
			}
			if iv < 0 {
				return Action{}, fmt.Errorf("%w: WEIGHTED weight for %q is negative", types.ErrInvalidAction, name)
			}
			weights[name] = int(iv)
			anyPositive = anyPositive || iv > 0
		}
		if !anyPositive {
			return Action{}, fmt.Errorf("%w: WEIGHTED requires at least one weight > 0", types.ErrInvalidAction)
		}
		var stickyBy string
		if rawSticky, present := raw["sticky_by"]; present && rawSticky != nil {
			stickyBy, ok = rawSticky.(string)
			if !ok {
				return Action{}, fmt.Errorf("%w: \"sticky_by\" must be a string", types.ErrInvalidAction)
			}
		}
		return Action{Route: RouteWeighted, Weights: weights, StickyBy: stickyBy}, nil

	case RouteDeny:
		var reason string
		if rawReason, present := raw["reason_code"]; present && rawReason != nil {
			var ok bool
			reason, ok = rawReason.(string)
			if !ok {
				return Action{}, fmt.Errorf("%w: \"reason_code\" must be a string", types.ErrInvalidAction)
			}
		}
		return Action{Route: RouteDeny, ReasonCode: reason}, nil

	default:
		return Action{}, fmt.Errorf("%w: unsupported route %q", types.ErrInvalidAction, route)
	}
}
