package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/kamipay/pixrouter/internal/core/config"
	"github.com/kamipay/pixrouter/internal/core/db"
	"github.com/kamipay/pixrouter/internal/repo"
	"github.com/kamipay/pixrouter/internal/rules"
	"github.com/kamipay/pixrouter/internal/types"
)

var rulesetCmd = &cobra.Command{
	Use:   "ruleset",
	Short: "Inspect, validate and manage routing rule sets",
}

var rulesetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rule sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		conn, database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		ruleSets, err := database.ListRuleSets(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tACTIVE\tVERSION\tDEFAULT GATEWAY")
		for _, rs := range ruleSets {
			defaultGW := rs.DefaultGateway
			if defaultGW == "" {
				defaultGW = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%v\t%d\t%s\n", rs.ID, rs.Name, rs.IsActive, rs.Version, defaultGW)
		}
		return w.Flush()
	},
}

var exportRuleSetID int64

var rulesetExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a rule set as a JSON document",
	Long:  `Export writes a rule set, its rules and the gateway catalog as the JSON document format accepted by validate and simulate. Without --id the active rule set is exported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		conn, database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx := cmd.Context()
		var rs *types.RuleSet
		if exportRuleSetID > 0 {
			rs, err = database.GetRuleSetByID(ctx, exportRuleSetID)
		} else {
			rs, err = database.GetActiveRuleSet(ctx)
		}
		if err != nil {
			return err
		}
		if rs == nil {
			return types.ErrRuleSetNotFound
		}

		ruleList, err := database.GetRulesForRuleSet(ctx, rs.ID)
		if err != nil {
			return err
		}
		gateways, err := database.GetGatewaysMap(ctx)
		if err != nil {
			return err
		}

		doc := buildDocument(rs, ruleList, gateways)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	},
}

var activateRuleSetID int64

var rulesetActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate a rule set",
	Long:  `Activate makes the given rule set the single active one and bumps its version, which reshuffles sticky routing buckets. The rule set is compiled first so an invalid set can never go live.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if activateRuleSetID <= 0 {
			return fmt.Errorf("--id is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		conn, database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx := cmd.Context()
		if _, err := rules.CompileRuleSet(ctx, database, rules.RuleSetCompileOptions{RuleSetID: &activateRuleSetID, Logger: logger}); err != nil {
			return fmt.Errorf("ruleset %d failed validation: %w", activateRuleSetID, err)
		}
		if err := database.ActivateRuleSet(ctx, activateRuleSetID); err != nil {
			return err
		}
		invalidateCache(ctx, cfg, database, logger, activateRuleSetID)

		fmt.Fprintf(cmd.OutOrStdout(), "ruleset %d activated\n", activateRuleSetID)
		return nil
	},
}

var rulesetValidateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Validate a local rule set document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		store, err := memoryRepoFromFile(args[0])
		if err != nil {
			return err
		}
		snap, err := rules.CompileRuleSet(cmd.Context(), store, rules.RuleSetCompileOptions{Logger: logger})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d rules compiled in %.2fms\n", snap.TotalRules, snap.LoadedAtMS)
		return nil
	},
}

var (
	simulateRuleSetFile string
	simulateRuleSetID   int64
	simulateNoFallback  bool
	simulateTrace       bool
)

var rulesetSimulateCmd = &cobra.Command{
	Use:   "simulate CONTEXT_FILE",
	Short: "Simulate a selection for a context JSON file",
	Long:  `Simulate compiles a rule set (from --file, --id, or the active one) and runs one selection against the context document, printing the decision. A "now" field in RFC 3339 format pins the evaluation instant for TIME_WINDOW rules.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		selCtx, err := parseContextFile(args[0])
		if err != nil {
			return err
		}

		var store rules.Repository
		if simulateRuleSetFile != "" {
			store, err = memoryRepoFromFile(simulateRuleSetFile)
			if err != nil {
				return err
			}
		} else {
			conn, database, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			store = database
		}

		copts := rules.RuleSetCompileOptions{
			Trace:          simulateTrace || cfg.Compiler.Trace,
			Logger:         logger,
			CaptureCtxKeys: cfg.Compiler.CaptureCtxKeys,
		}
		if simulateRuleSetFile == "" && simulateRuleSetID > 0 {
			copts.RuleSetID = &simulateRuleSetID
		}
		snap, err := rules.CompileRuleSet(cmd.Context(), store, copts)
		if err != nil {
			return err
		}

		gw, dec := rules.Select(selCtx, snap, rules.SelectOptions{
			AllowFallback: cfg.Selector.AllowFallback && !simulateNoFallback,
		})

		out := map[string]any{"decision": dec}
		if gw != nil {
			out["gateway"] = gw
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rulesetExportCmd.Flags().Int64Var(&exportRuleSetID, "id", 0, "rule set id (default: active rule set)")
	rulesetActivateCmd.Flags().Int64Var(&activateRuleSetID, "id", 0, "rule set id to activate")
	rulesetSimulateCmd.Flags().StringVar(&simulateRuleSetFile, "file", "", "local rule set document instead of the database")
	rulesetSimulateCmd.Flags().Int64Var(&simulateRuleSetID, "id", 0, "rule set id (default: active rule set)")
	rulesetSimulateCmd.Flags().BoolVar(&simulateNoFallback, "no-fallback", false, "disable the default-gateway fallback")
	rulesetSimulateCmd.Flags().BoolVar(&simulateTrace, "trace", false, "log every predicate node evaluation")

	rulesetCmd.AddCommand(rulesetListCmd, rulesetExportCmd, rulesetActivateCmd, rulesetValidateCmd, rulesetSimulateCmd)
	rootCmd.AddCommand(rulesetCmd)
}

// invalidateCache drops the cached repository reads after an activation so
// the next compile sees the new active set immediately. Failures only warn;
// the TTL bounds staleness anyway.
func invalidateCache(ctx context.Context, cfg *config.Config, database *repo.Database, logger *slog.Logger, ruleSetID int64) {
	if !cfg.Cache.Enabled {
		return
	}
	cache, err := repo.NewCache(database, repo.CacheConfig{
		Address:  cfg.Cache.Address,
		Username: cfg.Cache.Username,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.Cache.Prefix,
	}, logger, nil)
	if err != nil {
		logger.Warn("cache unavailable, skipping invalidation", slog.Any("error", err))
		return
	}
	defer cache.Close()
	cache.Invalidate(ctx, ruleSetID)
}

func openDatabase(cfg *config.Config) (*sqlx.DB, *repo.Database, error) {
	conn, err := db.Open(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	database, err := repo.NewDatabase(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, database, nil
}

func memoryRepoFromFile(path string) (*repo.Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := repo.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return repo.NewMemory(doc), nil
}

// parseContextFile decodes a selection context. A top-level "now" string in
// RFC 3339 format becomes a time.Time so TIME_WINDOW rules evaluate against
// it.
func parseContextFile(path string) (types.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var ctx types.Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parse context %s: %w", path, err)
	}
	if raw, ok := ctx["now"].(string); ok {
		now, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("context \"now\" must be RFC 3339: %w", err)
		}
		ctx["now"] = now
	}
	return ctx, nil
}

func buildDocument(rs *types.RuleSet, ruleList []types.Rule, gateways map[string]types.GatewayConfig) repo.Document {
	doc := repo.Document{
		RuleSet: repo.DocumentRuleSet{
			Name:           rs.Name,
			DefaultGateway: rs.DefaultGateway,
		},
	}
	if rs.StickySalt != "" {
		salt := rs.StickySalt
		doc.RuleSet.StickySalt = &salt
	}
	version := rs.Version
	doc.RuleSet.Version = &version

	for _, r := range ruleList {
		enabled := r.Enabled
		doc.Rules = append(doc.Rules, repo.DocumentRule{
			Priority:       r.Priority,
			Name:           r.Name,
			Enabled:        &enabled,
			ConditionType:  r.ConditionType,
			ConditionValue: r.ConditionValue,
			ConditionJSON:  r.ConditionJSON,
			Action:         r.Action,
		})
	}

	names := make([]string, 0, len(gateways))
	for name := range gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		gw := gateways[name]
		enabled := gw.IsEnabled
		maintenance := gw.InMaintenance
		doc.Gateways = append(doc.Gateways, repo.DocumentGateway{
			Name:          gw.Name,
			IsEnabled:     &enabled,
			InMaintenance: &maintenance,
		})
	}
	return doc
}
