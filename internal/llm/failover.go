package llm

import (
	"fmt"
	"sync"
)

// ModelFailover ranks an ordered list of model names. Calls go through the
// current front of the order; a model rejected as invalid is marked
// unavailable for the rest of the process, and the first model that
// succeeds becomes sticky.
type ModelFailover struct {
	mu          sync.Mutex
	order       []string
	unavailable map[string]bool
}

// NewModelFailover builds a failover holder from primary plus fallbacks.
// Duplicates are collapsed, keeping the earliest position.
func NewModelFailover(primary string, fallbacks ...string) *ModelFailover {
	seen := map[string]bool{}
	var order []string
	for _, m := range append([]string{primary}, fallbacks...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		order = append(order, m)
	}
	return &ModelFailover{
		order:       order,
		unavailable: map[string]bool{},
	}
}

// Current returns the model a fresh call should start with.
func (f *ModelFailover) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.order {
		if !f.unavailable[m] {
			return m
		}
	}
	return ""
}

// candidates snapshots the usable models in current-first order.
func (f *ModelFailover) candidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.order))
	for _, m := range f.order {
		if !f.unavailable[m] {
			out = append(out, m)
		}
	}
	return out
}

// markUnavailable removes a model from rotation for this process.
func (f *ModelFailover) markUnavailable(model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unavailable[model] = true
}

// promote makes a model sticky: subsequent calls start with it.
func (f *ModelFailover) promote(model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.order) > 0 && f.order[0] == model {
		return
	}
	reordered := []string{model}
	for _, m := range f.order {
		if m != model {
			reordered = append(reordered, m)
		}
	}
	f.order = reordered
}

// Do runs call against each usable model in current-first order. An
// invalid-model error skips to the next candidate; any other error is
// returned immediately. The model that succeeds is promoted.
func (f *ModelFailover) Do(call func(model string) error) (string, error) {
	models := f.candidates()
	if len(models) == 0 {
		return "", fmt.Errorf("llm: no usable models in failover order")
	}

	var lastErr error
	for _, model := range models {
		err := call(model)
		if err == nil {
			f.promote(model)
			return model, nil
		}
		if IsInvalidModel(err) {
			f.markUnavailable(model)
			lastErr = err
			continue
		}
		return model, err
	}
	return "", fmt.Errorf("llm: all models in failover order rejected: %w", lastErr)
}
