package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kamipay/pixrouter/internal/types"
)

// Repository supplies the records one compilation reads. Implementations live
// in internal/repo. The compiler makes no transactional assumptions across
// the four reads; a torn read surfaces as a validation error and the previous
// snapshot stays in service.
type Repository interface {
	GetActiveRuleSet(ctx context.Context) (*types.RuleSet, error)
	GetRuleSetByID(ctx context.Context, id int64) (*types.RuleSet, error)
	GetRulesForRuleSet(ctx context.Context, ruleSetID int64) ([]types.Rule, error)
	GetGatewaysMap(ctx context.Context) (map[string]types.GatewayConfig, error)
}

// CompiledRule is one rule ready for the hot path.
type CompiledRule struct {
	ID        int64
	Priority  int
	Enabled   bool
	Name      string
	Predicate Matcher
	Action    Action
}

// Snapshot is an immutable compiled rule set. Selectors read it without
// locks; hot reload swaps in a fresh one atomically. Treat every field as
// read-only after construction.
type Snapshot struct {
	RuleSetID      int64
	Version        int64
	Name           string
	StickySalt     string
	Rules          []CompiledRule
	Gateways       map[string]types.GatewayConfig
	DefaultGateway string
	LoadedAtMS     float64
	TotalRules     int
}

// RuleSetCompileOptions controls a rule-set compilation.
type RuleSetCompileOptions struct {
	// RuleSetID compiles a specific rule set instead of the active one.
	RuleSetID *int64
	// Trace wraps every predicate node with debug logging.
	Trace          bool
	Logger         *slog.Logger
	CaptureCtxKeys bool
}

// CompileRuleSet loads, validates and compiles a rule set into a snapshot.
//
// Pipeline: read the rule set, the gateway catalog and the ordered rules;
// expand condition shorthands into predicate trees; compile each predicate;
// validate each action against the catalog. Any rule failure aborts the whole
// compilation so a half-valid set never goes live.
func CompileRuleSet(ctx context.Context, repo Repository, opts RuleSetCompileOptions) (*Snapshot, error) {
	start := time.Now()

	var rs *types.RuleSet
	var err error
	if opts.RuleSetID != nil {
		rs, err = repo.GetRuleSetByID(ctx, *opts.RuleSetID)
		if err != nil {
			return nil, fmt.Errorf("load ruleset %d: %w", *opts.RuleSetID, err)
		}
		if rs == nil {
			return nil, fmt.Errorf("ruleset %d: %w", *opts.RuleSetID, types.ErrRuleSetNotFound)
		}
	} else {
		rs, err = repo.GetActiveRuleSet(ctx)
		if err != nil {
			return nil, fmt.Errorf("load active ruleset: %w", err)
		}
		if rs == nil {
			return nil, types.ErrNoActiveRuleSet
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gateways, err := repo.GetGatewaysMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gateways: %w", err)
	}
	if len(gateways) == 0 {
		return nil, types.ErrNoGateways
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rawRules, err := repo.GetRulesForRuleSet(ctx, rs.ID)
	if err != nil {
		return nil, fmt.Errorf("load rules for ruleset %d: %w", rs.ID, err)
	}

	copts := CompileOptions{Trace: opts.Trace, Logger: opts.Logger, CaptureCtxKeys: opts.CaptureCtxKeys}
	compiled := make([]CompiledRule, 0, len(rawRules))
	for _, r := range rawRules {
		cond, err := expandCondition(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		predicate, err := compileNode(cond, fmt.Sprintf("RULE[%d]", r.ID), copts)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		action, err := parseAction(r.Action, gateways)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		compiled = append(compiled, CompiledRule{
			ID:        r.ID,
			Priority:  r.Priority,
			Enabled:   r.Enabled,
			Name:      r.Name,
			Predicate: predicate,
			Action:    action,
		})
	}

	// Defensive re-sort; the repository already orders by priority. Stable
	// keeps the repository's id tiebreak for equal priorities.
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority < compiled[j].Priority
	})

	if rs.DefaultGateway != "" {
		if _, known := gateways[rs.DefaultGateway]; !known {
			return nil, fmt.Errorf("default gateway %q: %w", rs.DefaultGateway, types.ErrUnknownGateway)
		}
	}

	snapshot := &Snapshot{
		RuleSetID:      rs.ID,
		Version:        rs.Version,
		Name:           rs.Name,
		StickySalt:     rs.StickySalt,
		Rules:          compiled,
		Gateways:       gateways,
		DefaultGateway: rs.DefaultGateway,
		LoadedAtMS:     float64(time.Since(start).Microseconds()) / 1000.0,
		TotalRules:     len(compiled),
	}

	if opts.Logger != nil {
		opts.Logger.Info("ruleset compiled",
			slog.Int64("ruleset_id", snapshot.RuleSetID),
			slog.Int64("version", snapshot.Version),
			slog.Int("total_rules", snapshot.TotalRules),
			slog.Float64("loaded_at_ms", snapshot.LoadedAtMS),
		)
	}

	return snapshot, nil
}

// expandCondition turns a rule's condition shorthand into a predicate tree.
// An empty condition type means ADVANCED.
func expandCondition(r types.Rule) (map[string]any, error) {
	ftype := strings.ToUpper(r.ConditionType)
	if ftype == "" {
		ftype = types.ConditionAdvanced
	}

	if ftype == types.ConditionAdvanced {
		if len(r.ConditionJSON) == 0 {
			return nil, fmt.Errorf("%w: ADVANCED requires condition_json", types.ErrInvalidCondition)
		}
		return r.ConditionJSON, nil
	}

	if r.ConditionValue == "" {
		return nil, fmt.Errorf("%w: %s requires condition_value", types.ErrInvalidCondition, ftype)
	}

	switch ftype {
	case types.ConditionUser:
		uid, err := strconv.ParseInt(strings.TrimSpace(r.ConditionValue), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: USER requires an integer, got %q", types.ErrInvalidCondition, r.ConditionValue)
		}
		return map[string]any{
			"type":   "VALUE_IN",
			"field":  "api_user_id",
			"values": []any{uid},
			"coerce": "int",
		}, nil

	case types.ConditionPixKey:
		return map[string]any{
			"type":   "VALUE_IN",
			"field":  "pix_key",
			"values": []any{r.ConditionValue},
			"coerce": "str",
		}, nil

	case types.ConditionPixKeyType:
		t := strings.ToUpper(r.ConditionValue)
		if !types.IsPixKeyType(t) {
			return nil, fmt.Errorf("%w: unknown PIX key type %q", types.ErrInvalidCondition, r.ConditionValue)
		}
		return map[string]any{
			"type":   "VALUE_IN",
			"field":  "pix_key_type",
			"values": []any{t},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownConditionType, r.ConditionType)
	}
}
