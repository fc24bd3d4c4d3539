package mapper

import (
	"context"
	"sync"

	"relmap/record"
	"relmap/schema"
)

// Hook observes or mutates a record at one lifecycle point. Returning an
// error aborts the operation; for Before hooks nothing has been written
// yet.
type Hook func(ctx context.Context, r *record.Record) error

// Hooks holds the lifecycle hook lists of one registered type. Hooks run
// in registration order. BeforeFetch receives a blank record of the
// type, since no row exists yet; AfterFetch runs once per fetched
// record, after any requested relations were loaded onto it.
type Hooks struct {
	BeforeFetch   []Hook
	AfterFetch    []Hook
	BeforeSave    []Hook
	AfterSave     []Hook
	BeforeDestroy []Hook
	AfterDestroy  []Hook
}

type hookSet struct {
	mu    sync.Mutex
	byTyp map[*schema.Type]*Hooks
}

func (h *hookSet) forType(t *schema.Type) *Hooks {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byTyp == nil {
		h.byTyp = make(map[*schema.Type]*Hooks)
	}
	hooks, ok := h.byTyp[t]
	if !ok {
		hooks = &Hooks{}
		h.byTyp[t] = hooks
	}
	return hooks
}

func runHooks(ctx context.Context, hooks []Hook, r *record.Record) error {
	for _, hook := range hooks {
		if err := hook(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
