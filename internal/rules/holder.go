package rules

import (
	"context"
	"sync/atomic"
)

// Holder publishes compiled snapshots for lock-free readers. Selections read
// whatever snapshot is current; Reload compiles a fresh one and swaps it in,
// leaving the previous snapshot in service if compilation fails.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder returns an empty holder. Current returns nil until the first
// successful reload or swap.
func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the published snapshot, or nil if none has been loaded.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Swap publishes snap and returns the previous snapshot.
func (h *Holder) Swap(snap *Snapshot) *Snapshot {
	return h.current.Swap(snap)
}

// Reload compiles from the repository and publishes the result. On error the
// current snapshot is left untouched.
func (h *Holder) Reload(ctx context.Context, repo Repository, opts RuleSetCompileOptions) (*Snapshot, error) {
	snap, err := CompileRuleSet(ctx, repo, opts)
	if err != nil {
		return nil, err
	}
	h.current.Store(snap)
	return snap, nil
}
