// Package repo provides repository implementations feeding the rule-set
// compiler: an in-memory JSON-document repo for validation and simulation, a
// sqlx-backed database repo, and a Valkey read-through cache wrapper.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kamipay/pixrouter/internal/types"
)

// Document is the JSON shape accepted by the in-memory repository:
//
//	{"ruleset": {...}, "rules": [...], "gateways": [...]}
//
// Fields a database would default are optional here and filled in the same
// way: gateways start enabled and out of maintenance, rules start enabled,
// the rule set gets version 1 and a fixed local salt.
type Document struct {
	RuleSet  DocumentRuleSet   `json:"ruleset"`
	Rules    []DocumentRule    `json:"rules"`
	Gateways []DocumentGateway `json:"gateways"`
}

type DocumentRuleSet struct {
	Name           string `json:"name"`
	StickySalt     *string `json:"sticky_salt,omitempty"`
	DefaultGateway string `json:"default_gateway,omitempty"`
	Version        *int64 `json:"version,omitempty"`
}

type DocumentRule struct {
	Priority       int            `json:"priority"`
	Name           string         `json:"name,omitempty"`
	Enabled        *bool          `json:"enabled,omitempty"`
	ConditionType  string         `json:"condition_type,omitempty"`
	ConditionValue string         `json:"condition_value,omitempty"`
	ConditionJSON  map[string]any `json:"condition_json,omitempty"`
	Action         map[string]any `json:"action"`
}

type DocumentGateway struct {
	Name          string `json:"name"`
	IsEnabled     *bool  `json:"is_enabled,omitempty"`
	InMaintenance *bool  `json:"in_maintenance,omitempty"`
}

// ParseDocument decodes a rule-set document from JSON.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse ruleset document: %w", err)
	}
	return doc, nil
}

// Memory serves the four compiler reads from a parsed document. It exists for
// offline validation and simulation; ids are synthetic (1..n for rules) so
// the document never needs them.
type Memory struct {
	ruleset  types.RuleSet
	rules    []types.Rule
	gateways map[string]types.GatewayConfig
}

// NewMemory builds a Memory repo from a document, applying the defaults a
// database schema would.
func NewMemory(doc Document) *Memory {
	salt := "local-validation"
	if doc.RuleSet.StickySalt != nil {
		salt = *doc.RuleSet.StickySalt
	}
	version := int64(1)
	if doc.RuleSet.Version != nil {
		version = *doc.RuleSet.Version
	}
	m := &Memory{
		ruleset: types.RuleSet{
			ID:             1,
			Name:           doc.RuleSet.Name,
			IsActive:       true,
			StickySalt:     salt,
			DefaultGateway: doc.RuleSet.DefaultGateway,
			Version:        version,
		},
		gateways: make(map[string]types.GatewayConfig, len(doc.Gateways)),
	}

	for i, gw := range doc.Gateways {
		enabled := true
		if gw.IsEnabled != nil {
			enabled = *gw.IsEnabled
		}
		maintenance := false
		if gw.InMaintenance != nil {
			maintenance = *gw.InMaintenance
		}
		m.gateways[gw.Name] = types.GatewayConfig{
			ID:            int64(i + 1),
			Name:          gw.Name,
			IsEnabled:     enabled,
			InMaintenance: maintenance,
		}
	}

	m.rules = make([]types.Rule, 0, len(doc.Rules))
	for i, r := range doc.Rules {
		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}
		m.rules = append(m.rules, types.Rule{
			ID:             int64(i + 1),
			RuleSetID:      m.ruleset.ID,
			Priority:       r.Priority,
			Name:           r.Name,
			Enabled:        enabled,
			ConditionType:  r.ConditionType,
			ConditionValue: r.ConditionValue,
			ConditionJSON:  r.ConditionJSON,
			Action:         r.Action,
		})
	}
	sort.SliceStable(m.rules, func(i, j int) bool {
		return m.rules[i].Priority < m.rules[j].Priority
	})

	return m
}

// GetActiveRuleSet returns the loaded rule set; in a local context it is
// always considered active.
func (m *Memory) GetActiveRuleSet(context.Context) (*types.RuleSet, error) {
	rs := m.ruleset
	return &rs, nil
}

// GetRuleSetByID ignores the id; only one rule set is loaded.
func (m *Memory) GetRuleSetByID(context.Context, int64) (*types.RuleSet, error) {
	rs := m.ruleset
	return &rs, nil
}

func (m *Memory) GetRulesForRuleSet(context.Context, int64) ([]types.Rule, error) {
	out := make([]types.Rule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func (m *Memory) GetGatewaysMap(context.Context) (map[string]types.GatewayConfig, error) {
	out := make(map[string]types.GatewayConfig, len(m.gateways))
	for k, v := range m.gateways {
		out[k] = v
	}
	return out, nil
}
