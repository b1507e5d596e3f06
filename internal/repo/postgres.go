package repo

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"

	"github.com/kamipay/pixrouter/internal/types"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Database is the sqlx-backed repository over the gateway selector tables.
// Named queries come from embedded .sql files via dotsql; placeholders are
// rebound per driver, so the same SQL runs on SQLite and PostgreSQL.
type Database struct {
	db  *sqlx.DB
	dot *dotsql.DotSql
}

// NewDatabase loads the embedded named queries and wraps the connection.
func NewDatabase(db *sqlx.DB) (*Database, error) {
	var combined strings.Builder

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteByte('\n')
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("parse queries: %w", err)
	}

	return &Database{db: db, dot: dot}, nil
}

type ruleSetRow struct {
	ID             int64  `db:"id"`
	Name           string `db:"name"`
	IsActive       bool   `db:"is_active"`
	StickySalt     string `db:"sticky_salt"`
	DefaultGateway string `db:"default_gateway"`
	Version        int64  `db:"version"`
}

func (r ruleSetRow) toRuleSet() *types.RuleSet {
	return &types.RuleSet{
		ID:             r.ID,
		Name:           r.Name,
		IsActive:       r.IsActive,
		StickySalt:     r.StickySalt,
		DefaultGateway: r.DefaultGateway,
		Version:        r.Version,
	}
}

type ruleRow struct {
	ID             int64  `db:"id"`
	RuleSetID      int64  `db:"rule_set_id"`
	Priority       int    `db:"priority"`
	Name           string `db:"name"`
	Enabled        bool   `db:"enabled"`
	ConditionType  string `db:"condition_type"`
	ConditionValue string `db:"condition_value"`
	ConditionJSON  string `db:"condition_json"`
	Action         string `db:"action"`
}

func (r ruleRow) toRule() (types.Rule, error) {
	rule := types.Rule{
		ID:             r.ID,
		RuleSetID:      r.RuleSetID,
		Priority:       r.Priority,
		Name:           r.Name,
		Enabled:        r.Enabled,
		ConditionType:  r.ConditionType,
		ConditionValue: r.ConditionValue,
	}
	if r.ConditionJSON != "" {
		if err := json.Unmarshal([]byte(r.ConditionJSON), &rule.ConditionJSON); err != nil {
			return types.Rule{}, fmt.Errorf("rule %d: decode condition_json: %w", r.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(r.Action), &rule.Action); err != nil {
		return types.Rule{}, fmt.Errorf("rule %d: decode action: %w", r.ID, err)
	}
	return rule, nil
}

func (d *Database) query(name string) (string, error) {
	raw, err := d.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return d.db.Rebind(raw), nil
}

// GetActiveRuleSet returns the active rule set, or nil if none is active.
func (d *Database) GetActiveRuleSet(ctx context.Context) (*types.RuleSet, error) {
	q, err := d.query("get-active-ruleset")
	if err != nil {
		return nil, err
	}
	var row ruleSetRow
	if err := d.db.GetContext(ctx, &row, q); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active ruleset: %w", err)
	}
	return row.toRuleSet(), nil
}

// GetRuleSetByID returns the rule set, or nil if the id does not exist.
func (d *Database) GetRuleSetByID(ctx context.Context, id int64) (*types.RuleSet, error) {
	q, err := d.query("get-ruleset-by-id")
	if err != nil {
		return nil, err
	}
	var row ruleSetRow
	if err := d.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ruleset %d: %w", id, err)
	}
	return row.toRuleSet(), nil
}

// ListRuleSets returns every rule set ordered by id.
func (d *Database) ListRuleSets(ctx context.Context) ([]types.RuleSet, error) {
	q, err := d.query("list-rulesets")
	if err != nil {
		return nil, err
	}
	var rows []ruleSetRow
	if err := d.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list rulesets: %w", err)
	}
	out := make([]types.RuleSet, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toRuleSet())
	}
	return out, nil
}

// GetRulesForRuleSet returns the rules ordered by priority, then id.
func (d *Database) GetRulesForRuleSet(ctx context.Context, ruleSetID int64) ([]types.Rule, error) {
	q, err := d.query("list-rules-for-ruleset")
	if err != nil {
		return nil, err
	}
	var rows []ruleRow
	if err := d.db.SelectContext(ctx, &rows, q, ruleSetID); err != nil {
		return nil, fmt.Errorf("list rules for ruleset %d: %w", ruleSetID, err)
	}
	out := make([]types.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// GetGatewaysMap returns the gateway catalog keyed by name.
func (d *Database) GetGatewaysMap(ctx context.Context) (map[string]types.GatewayConfig, error) {
	q, err := d.query("list-gateways")
	if err != nil {
		return nil, err
	}
	var rows []types.GatewayConfig
	if err := d.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("list gateways: %w", err)
	}
	out := make(map[string]types.GatewayConfig, len(rows))
	for _, gw := range rows {
		out[gw.Name] = gw
	}
	return out, nil
}

// ActivateRuleSet makes one rule set active, deactivating the rest in the
// same transaction so the single-active invariant holds at every commit
// point. Activation bumps the version, which deliberately reshuffles sticky
// buckets.
func (d *Database) ActivateRuleSet(ctx context.Context, id int64) error {
	deactivate, err := d.query("deactivate-rulesets")
	if err != nil {
		return err
	}
	activate, err := d.query("activate-ruleset")
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deactivate); err != nil {
		return fmt.Errorf("deactivate rulesets: %w", err)
	}
	res, err := tx.ExecContext(ctx, activate, id)
	if err != nil {
		return fmt.Errorf("activate ruleset %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("activate ruleset %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("ruleset %d: %w", id, types.ErrRuleSetNotFound)
	}
	return tx.Commit()
}

// InsertRuleSet stores a rule set and returns its id.
func (d *Database) InsertRuleSet(ctx context.Context, rs types.RuleSet) (int64, error) {
	q, err := d.query("insert-ruleset")
	if err != nil {
		return 0, err
	}
	if _, err := d.db.ExecContext(ctx, q, rs.Name, rs.IsActive, nullable(rs.StickySalt), nullable(rs.DefaultGateway), rs.Version); err != nil {
		return 0, fmt.Errorf("insert ruleset: %w", err)
	}
	return d.lastInsertedID(ctx, "gateway_selector_rule_sets", "name", rs.Name)
}

// InsertRule stores a rule and returns its id.
func (d *Database) InsertRule(ctx context.Context, r types.Rule) (int64, error) {
	q, err := d.query("insert-rule")
	if err != nil {
		return 0, err
	}
	var condJSON any
	if len(r.ConditionJSON) > 0 {
		encoded, err := json.Marshal(r.ConditionJSON)
		if err != nil {
			return 0, fmt.Errorf("encode condition_json: %w", err)
		}
		condJSON = string(encoded)
	}
	action, err := json.Marshal(r.Action)
	if err != nil {
		return 0, fmt.Errorf("encode action: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, q, r.RuleSetID, r.Priority, nullable(r.Name), r.Enabled, r.ConditionType, nullable(r.ConditionValue), condJSON, string(action)); err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	var id int64
	sel := d.db.Rebind("SELECT id FROM gateway_selector_rules WHERE rule_set_id = ? AND priority = ?")
	if err := d.db.GetContext(ctx, &id, sel, r.RuleSetID, r.Priority); err != nil {
		return 0, fmt.Errorf("resolve rule id: %w", err)
	}
	return id, nil
}

// InsertGateway stores a gateway config and returns its id.
func (d *Database) InsertGateway(ctx context.Context, gw types.GatewayConfig) (int64, error) {
	q, err := d.query("insert-gateway")
	if err != nil {
		return 0, err
	}
	if _, err := d.db.ExecContext(ctx, q, gw.Name, gw.IsEnabled, gw.InMaintenance); err != nil {
		return 0, fmt.Errorf("insert gateway: %w", err)
	}
	return d.lastInsertedID(ctx, "gateway_selector_gateway_configs", "name", gw.Name)
}

func (d *Database) lastInsertedID(ctx context.Context, table, keyCol, keyVal string) (int64, error) {
	var id int64
	q := d.db.Rebind(fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, keyCol))
	if err := d.db.GetContext(ctx, &id, q, keyVal); err != nil {
		return 0, fmt.Errorf("resolve inserted id in %s: %w", table, err)
	}
	return id, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
