// Package types provides the domain models shared across pixrouter components.
package types

// Context carries the facts about a payment that rules are evaluated against.
// Values follow encoding/json conventions: nested objects are map[string]any,
// numbers decoded from JSON arrive as float64. A context is read-only during
// selection.
type Context map[string]any

// GatewayConfig describes a payment gateway known to the selector.
type GatewayConfig struct {
	ID            int64  `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	IsEnabled     bool   `db:"is_enabled" json:"is_enabled"`
	InMaintenance bool   `db:"in_maintenance" json:"in_maintenance"`
}

// Available reports whether traffic may be routed to the gateway.
func (g GatewayConfig) Available() bool {
	return g.IsEnabled && !g.InMaintenance
}

// RuleSet is a versioned collection of routing rules. At most one rule set is
// active at a time; Version increments on every activation so sticky routing
// reshuffles deliberately rather than silently.
type RuleSet struct {
	ID             int64  `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	IsActive       bool   `db:"is_active" json:"is_active"`
	StickySalt     string `db:"sticky_salt" json:"sticky_salt,omitempty"`
	DefaultGateway string `db:"default_gateway" json:"default_gateway,omitempty"`
	Version        int64  `db:"version" json:"version"`
}

// Condition shorthand types. ConditionAdvanced carries a full predicate tree
// in ConditionJSON; the others expand a single ConditionValue into one.
const (
	ConditionAdvanced   = "ADVANCED"
	ConditionUser       = "USER"
	ConditionPixKey     = "PIX_KEY"
	ConditionPixKeyType = "PIX_KEY_TYPE"
)

// Rule is one prioritized routing rule inside a rule set. Lower Priority
// evaluates first. ConditionJSON and Action hold decoded JSON documents.
type Rule struct {
	ID             int64          `json:"id"`
	RuleSetID      int64          `json:"rule_set_id"`
	Priority       int            `json:"priority"`
	Name           string         `json:"name,omitempty"`
	Enabled        bool           `json:"enabled"`
	ConditionType  string         `json:"condition_type"`
	ConditionValue string         `json:"condition_value,omitempty"`
	ConditionJSON  map[string]any `json:"condition_json,omitempty"`
	Action         map[string]any `json:"action"`
}
