package repo

import (
	"context"
	"testing"
)

const sampleDocument = `{
	"ruleset": {"name": "local", "default_gateway": "gw_a"},
	"rules": [
		{"priority": 20, "name": "catch-email", "condition_type": "PIX_KEY_TYPE", "condition_value": "EMAIL", "action": {"route": "FIXED", "gateway": "gw_b"}},
		{"priority": 10, "condition_json": {"type": "VALUE_IN", "field": "api_user_id", "values": [42], "coerce": "int"}, "action": {"route": "DENY"}},
		{"priority": 30, "enabled": false, "condition_type": "PIX_KEY", "condition_value": "x@y.z", "action": {"route": "FIXED", "gateway": "gw_a"}}
	],
	"gateways": [
		{"name": "gw_a"},
		{"name": "gw_b", "in_maintenance": true},
		{"name": "gw_c", "is_enabled": false}
	]
}`

func TestMemoryDefaults(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	m := NewMemory(doc)
	ctx := context.Background()

	rs, err := m.GetActiveRuleSet(ctx)
	if err != nil {
		t.Fatalf("GetActiveRuleSet: %v", err)
	}
	if rs.ID != 1 || !rs.IsActive || rs.Name != "local" {
		t.Errorf("ruleset = %+v, want active id 1 named local", rs)
	}
	if rs.Version != 1 {
		t.Errorf("Version = %d, want default 1", rs.Version)
	}
	if rs.StickySalt != "local-validation" {
		t.Errorf("StickySalt = %q, want the local default", rs.StickySalt)
	}
	if rs.DefaultGateway != "gw_a" {
		t.Errorf("DefaultGateway = %q, want gw_a", rs.DefaultGateway)
	}
}

func TestMemoryRuleOrderingAndIDs(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	m := NewMemory(doc)

	rulesList, err := m.GetRulesForRuleSet(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetRulesForRuleSet: %v", err)
	}
	if len(rulesList) != 3 {
		t.Fatalf("got %d rules, want 3", len(rulesList))
	}

	// Synthetic ids follow document order; rules come back priority-sorted.
	if rulesList[0].Priority != 10 || rulesList[0].ID != 2 {
		t.Errorf("first rule = id %d priority %d, want id 2 priority 10", rulesList[0].ID, rulesList[0].Priority)
	}
	if rulesList[1].Priority != 20 || rulesList[1].ID != 1 {
		t.Errorf("second rule = id %d priority %d, want id 1 priority 20", rulesList[1].ID, rulesList[1].Priority)
	}

	if !rulesList[0].Enabled || !rulesList[1].Enabled {
		t.Error("rules default to enabled")
	}
	if rulesList[2].Enabled {
		t.Error("explicit enabled=false must be kept")
	}
}

func TestMemoryGatewayDefaults(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	m := NewMemory(doc)

	gateways, err := m.GetGatewaysMap(context.Background())
	if err != nil {
		t.Fatalf("GetGatewaysMap: %v", err)
	}
	if len(gateways) != 3 {
		t.Fatalf("got %d gateways, want 3", len(gateways))
	}
	if gw := gateways["gw_a"]; !gw.IsEnabled || gw.InMaintenance {
		t.Errorf("gw_a = %+v, want enabled and out of maintenance by default", gw)
	}
	if gw := gateways["gw_b"]; !gw.InMaintenance {
		t.Errorf("gw_b = %+v, want in maintenance", gw)
	}
	if gw := gateways["gw_c"]; gw.IsEnabled {
		t.Errorf("gw_c = %+v, want disabled", gw)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	doc, err := ParseDocument([]byte(sampleDocument))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	m := NewMemory(doc)
	ctx := context.Background()

	gateways, _ := m.GetGatewaysMap(ctx)
	delete(gateways, "gw_a")
	again, _ := m.GetGatewaysMap(ctx)
	if _, ok := again["gw_a"]; !ok {
		t.Error("mutating a returned map must not affect the repository")
	}

	rulesList, _ := m.GetRulesForRuleSet(ctx, 1)
	rulesList[0].Priority = 999
	again2, _ := m.GetRulesForRuleSet(ctx, 1)
	if again2[0].Priority == 999 {
		t.Error("mutating a returned slice must not affect the repository")
	}
}

func TestParseDocumentRejectsGarbage(t *testing.T) {
	if _, err := ParseDocument([]byte("{not json")); err == nil {
		t.Error("expected a parse error")
	}
}
