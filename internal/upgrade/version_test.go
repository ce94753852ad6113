package upgrade

import (
	"context"
	"errors"
	"testing"
)

func TestValidateSkewAcceptsOneMinor(t *testing.T) {
	cases := []struct{ current, target string }{
		{"1.31.0", "1.32.5"},
		{"1.31.0", "1.31.4"},
		{"v1.31.0", "v1.32.0"},
	}
	for _, tc := range cases {
		if err := ValidateSkew(tc.current, tc.target); err != nil {
			t.Errorf("ValidateSkew(%s, %s) = %v, want nil", tc.current, tc.target, err)
		}
	}
}

func TestValidateSkewRejections(t *testing.T) {
	cases := []struct {
		name            string
		current, target string
	}{
		{"two minors ahead", "1.31.0", "1.33.0"},
		{"same version", "1.31.0", "1.31.0"},
		{"downgrade", "1.32.0", "1.31.5"},
		{"major bump", "1.31.0", "2.0.0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSkew(tc.current, tc.target)
			if err == nil {
				t.Fatalf("ValidateSkew(%s, %s) = nil, want error", tc.current, tc.target)
			}
			var se *SkewError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SkewError, got %T", err)
			}
		})
	}
}

func TestValidateSkewRejectsGarbage(t *testing.T) {
	if err := ValidateSkew("not-a-version", "1.32.0"); err == nil {
		t.Fatal("expected parse error")
	}
	if err := ValidateSkew("1.31.0", "latest"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPlanStepsSingleHop(t *testing.T) {
	steps, err := PlanSteps(context.Background(), StaticResolver{}, "1.31.0", "1.32.5", false)
	if err != nil {
		t.Fatalf("PlanSteps: %v", err)
	}
	if len(steps) != 1 || steps[0] != "1.32.5" {
		t.Fatalf("steps = %v, want [1.32.5]", steps)
	}
}

func TestPlanStepsAutoStepInsertsIntermediates(t *testing.T) {
	resolver := StaticResolver{"1.31": "1.31.9", "1.32": "1.32.5"}
	steps, err := PlanSteps(context.Background(), resolver, "1.30.0", "1.33.2", true)
	if err != nil {
		t.Fatalf("PlanSteps: %v", err)
	}
	want := []string{"1.31.9", "1.32.5", "1.33.2"}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("step %d = %s, want %s", i, steps[i], want[i])
		}
	}
}

func TestPlanStepsWithoutAutoStepRejectsBigJump(t *testing.T) {
	_, err := PlanSteps(context.Background(), StaticResolver{}, "1.31.0", "1.33.0", false)
	var se *SkewError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SkewError, got %v", err)
	}
}

func TestPlanStepsRejectsResolverOffSeries(t *testing.T) {
	resolver := StaticResolver{"1.31": "1.32.1"}
	if _, err := PlanSteps(context.Background(), resolver, "1.30.0", "1.32.5", true); err == nil {
		t.Fatal("expected error for off-series resolver answer")
	}
}

func TestPlanStepsResolverFailurePropagates(t *testing.T) {
	if _, err := PlanSteps(context.Background(), StaticResolver{}, "1.30.0", "1.33.0", true); err == nil {
		t.Fatal("expected error when a series cannot be resolved")
	}
}

func TestPlanStepsRejectsDowngradeAndEqual(t *testing.T) {
	if _, err := PlanSteps(context.Background(), StaticResolver{}, "1.32.0", "1.31.0", true); err == nil {
		t.Fatal("expected downgrade rejection")
	}
	if _, err := PlanSteps(context.Background(), StaticResolver{}, "1.32.0", "1.32.0", true); err == nil {
		t.Fatal("expected same-version rejection")
	}
}
