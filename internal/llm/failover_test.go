package llm

import (
	"errors"
	"net/http"
	"testing"
)

func invalidModelErr() error {
	return &APIError{StatusCode: http.StatusBadRequest, Body: `{"error":{"message":"The model 'A' does not exist"}}`}
}

func TestFailoverSkipsInvalidAndSticks(t *testing.T) {
	f := NewModelFailover("A", "B")

	var tried []string
	used, err := f.Do(func(model string) error {
		tried = append(tried, model)
		if model == "A" {
			return invalidModelErr()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if used != "B" {
		t.Errorf("expected B to serve the call, got %s", used)
	}
	if len(tried) != 2 || tried[0] != "A" || tried[1] != "B" {
		t.Errorf("first call should try A then B, got %v", tried)
	}

	// Second call starts with B and does not retry A.
	tried = nil
	used, err = f.Do(func(model string) error {
		tried = append(tried, model)
		return nil
	})
	if err != nil || used != "B" {
		t.Fatalf("expected sticky B, got %s err=%v", used, err)
	}
	if len(tried) != 1 || tried[0] != "B" {
		t.Errorf("second call must not retry the invalid model, got %v", tried)
	}
}

func TestFailoverTransientErrorKeepsOrder(t *testing.T) {
	f := NewModelFailover("A", "B", "C")

	// A fails transiently (not invalid-model): error is surfaced, order
	// unchanged.
	_, err := f.Do(func(model string) error {
		return errors.New("connection reset")
	})
	if err == nil {
		t.Fatal("transient errors must propagate")
	}
	if f.Current() != "A" {
		t.Errorf("transient error should not change order, current=%s", f.Current())
	}
}

func TestFailoverAllInvalid(t *testing.T) {
	f := NewModelFailover("A", "B")
	_, err := f.Do(func(model string) error {
		return invalidModelErr()
	})
	if err == nil {
		t.Fatal("exhausting all models must fail")
	}
	if f.Current() != "" {
		t.Errorf("no usable models should remain, current=%q", f.Current())
	}
}

func TestFailoverDedupsOrder(t *testing.T) {
	f := NewModelFailover("A", "A", "B", "")
	if got := f.candidates(); len(got) != 2 {
		t.Errorf("duplicates and blanks should collapse, got %v", got)
	}
}

func TestIsInvalidModel(t *testing.T) {
	if !IsInvalidModel(invalidModelErr()) {
		t.Error("invalid-model body should be detected")
	}
	if IsInvalidModel(&APIError{StatusCode: 429, Body: "rate limit exceeded"}) {
		t.Error("rate limits are not invalid-model errors")
	}
	if IsInvalidModel(errors.New("plain error")) {
		t.Error("non-API errors are not invalid-model errors")
	}
}
