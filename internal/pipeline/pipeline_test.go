package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestRunExecutesInOrder(t *testing.T) {
	r := NewRunner(1, zerolog.Nop())
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		r.Register(Step{Name: name, Run: func(ctx context.Context) (any, error) {
			order = append(order, name)
			return name + " done", nil
		}})
	}

	report := r.Run(context.Background(), []string{"first", "second", "third"})
	if !report.OK() {
		t.Fatalf("report failed: %+v", report)
	}
	if len(order) != 3 || order[0] != "first" || order[2] != "third" {
		t.Fatalf("order = %v", order)
	}
	if report.Steps[1].Detail != "second done" {
		t.Fatalf("detail = %v", report.Steps[1].Detail)
	}
}

func TestFailureIsolation(t *testing.T) {
	r := NewRunner(1, zerolog.Nop())
	ran := map[string]bool{}
	r.Register(Step{Name: "breaks", Run: func(ctx context.Context) (any, error) {
		ran["breaks"] = true
		return nil, errors.New("boom")
	}})
	r.Register(Step{Name: "still-runs", Run: func(ctx context.Context) (any, error) {
		ran["still-runs"] = true
		return nil, nil
	}})

	report := r.Run(context.Background(), []string{"breaks", "still-runs"})
	if !ran["still-runs"] {
		t.Fatal("a failing step must not stop later steps")
	}
	if report.Failed != 1 {
		t.Fatalf("failed = %d, want 1", report.Failed)
	}
	if report.Steps[0].Status != StatusFailed || report.Steps[1].Status != StatusOK {
		t.Fatalf("statuses = %+v", report.Steps)
	}
}

func TestTransientStepRetries(t *testing.T) {
	r := NewRunner(3, zerolog.Nop())
	calls := 0
	r.Register(Step{Name: "flaky", Transient: true, Run: func(ctx context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient failure")
		}
		return "recovered", nil
	}})

	report := r.Run(context.Background(), []string{"flaky"})
	if !report.OK() {
		t.Fatalf("report failed: %+v", report)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if report.Steps[0].Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", report.Steps[0].Attempts)
	}
}

func TestNonTransientStepDoesNotRetry(t *testing.T) {
	r := NewRunner(5, zerolog.Nop())
	calls := 0
	r.Register(Step{Name: "hard-fail", Run: func(ctx context.Context) (any, error) {
		calls++
		return nil, errors.New("no")
	}})

	report := r.Run(context.Background(), []string{"hard-fail"})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if report.Steps[0].Status != StatusFailed {
		t.Fatalf("status = %s", report.Steps[0].Status)
	}
}

func TestUnknownStepIsRecorded(t *testing.T) {
	r := NewRunner(1, zerolog.Nop())
	report := r.Run(context.Background(), []string{"never-registered"})
	if report.Steps[0].Status != StatusUnknown {
		t.Fatalf("status = %s, want unknown-step", report.Steps[0].Status)
	}
	if report.OK() {
		t.Fatal("unknown step must count as a failure")
	}
}

func TestCanceledContextStopsSteps(t *testing.T) {
	r := NewRunner(1, zerolog.Nop())
	ran := false
	r.Register(Step{Name: "step", Run: func(ctx context.Context) (any, error) {
		ran = true
		return nil, nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := r.Run(ctx, []string{"step"})
	if ran {
		t.Fatal("step ran after cancellation")
	}
	if report.OK() {
		t.Fatal("canceled run must not report success")
	}
}
