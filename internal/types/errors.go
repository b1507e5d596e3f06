package types

import "errors"

// Sentinel errors for pixrouter operations. Compilation errors wrap these with
// rule and node context; evaluation never returns errors.
var (
	// ErrNoActiveRuleSet indicates no rule set is currently active.
	ErrNoActiveRuleSet = errors.New("no active ruleset")

	// ErrRuleSetNotFound indicates the requested rule set id does not exist.
	ErrRuleSetNotFound = errors.New("ruleset not found")

	// ErrNoGateways indicates the gateway catalog is empty.
	ErrNoGateways = errors.New("no gateway configs available")

	// ErrUnknownGateway indicates an action references a gateway that is not
	// in the catalog.
	ErrUnknownGateway = errors.New("unknown gateway")

	// ErrUnknownConditionType indicates a rule carries an unrecognized
	// condition shorthand.
	ErrUnknownConditionType = errors.New("unknown condition type")

	// ErrInvalidCondition indicates a shorthand condition value is missing or
	// malformed.
	ErrInvalidCondition = errors.New("invalid condition")

	// ErrInvalidPredicate indicates a predicate tree node is malformed.
	ErrInvalidPredicate = errors.New("invalid predicate")

	// ErrUnknownMatcher indicates no factory is registered for a leaf's
	// (type, impl) pair.
	ErrUnknownMatcher = errors.New("unknown matcher")

	// ErrInvalidMatcherConfig indicates a leaf matcher config failed
	// build-time validation.
	ErrInvalidMatcherConfig = errors.New("invalid matcher config")

	// ErrInvalidAction indicates an action document failed validation.
	ErrInvalidAction = errors.New("invalid action")
)
