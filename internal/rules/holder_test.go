package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/kamipay/pixrouter/internal/types"
)

func TestHolderLifecycle(t *testing.T) {
	h := NewHolder()
	if h.Current() != nil {
		t.Fatal("fresh holder must have no snapshot")
	}

	first := &Snapshot{RuleSetID: 1, Version: 1}
	if prev := h.Swap(first); prev != nil {
		t.Errorf("first swap returned %v, want nil", prev)
	}
	if h.Current() != first {
		t.Error("Current must return the swapped-in snapshot")
	}

	second := &Snapshot{RuleSetID: 1, Version: 2}
	if prev := h.Swap(second); prev != first {
		t.Errorf("swap returned %v, want the first snapshot", prev)
	}
	if h.Current() != second {
		t.Error("Current must return the latest snapshot")
	}
}

func TestHolderReload(t *testing.T) {
	h := NewHolder()
	store := testStore()

	snap, err := h.Reload(context.Background(), store, RuleSetCompileOptions{})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if h.Current() != snap {
		t.Error("Reload must publish the compiled snapshot")
	}

	// A failing reload keeps the previous snapshot in service.
	store.active = nil
	_, err = h.Reload(context.Background(), store, RuleSetCompileOptions{})
	if !errors.Is(err, types.ErrNoActiveRuleSet) {
		t.Fatalf("Reload error = %v, want ErrNoActiveRuleSet", err)
	}
	if h.Current() != snap {
		t.Error("failed reload must not disturb the current snapshot")
	}
}
