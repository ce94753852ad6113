// Package upgrade implements the version policy for cluster upgrades:
// skew validation, multi-minor step planning and rollback bookkeeping.
package upgrade

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/version"
)

// SkewError reports a target version the policy refuses to upgrade to.
type SkewError struct {
	Current string
	Target  string
	Reason  string
}

func (e *SkewError) Error() string {
	return fmt.Sprintf("cannot upgrade %s -> %s: %s", e.Current, e.Target, e.Reason)
}

// ParseVersion parses a Kubernetes version string, with or without the
// leading v.
func ParseVersion(s string) (*version.Version, error) {
	v, err := version.ParseSemantic(strings.TrimPrefix(strings.TrimSpace(s), "v"))
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

// ValidateSkew checks that target is a single supported upgrade step from
// current: strictly newer, same major, and at most one minor ahead.
func ValidateSkew(current, target string) error {
	cur, err := ParseVersion(current)
	if err != nil {
		return err
	}
	tgt, err := ParseVersion(target)
	if err != nil {
		return err
	}
	return validateHop(cur, tgt, current, target)
}

func validateHop(cur, tgt *version.Version, currentStr, targetStr string) error {
	if tgt.LessThan(cur) {
		return &SkewError{Current: currentStr, Target: targetStr, Reason: "downgrades are not supported"}
	}
	if cur.AtLeast(tgt) && tgt.AtLeast(cur) {
		return &SkewError{Current: currentStr, Target: targetStr, Reason: "cluster is already at this version"}
	}
	if cur.Major() != tgt.Major() {
		return &SkewError{Current: currentStr, Target: targetStr, Reason: "major version changes are not supported"}
	}
	if tgt.Minor() > cur.Minor()+1 {
		return &SkewError{
			Current: currentStr,
			Target:  targetStr,
			Reason: fmt.Sprintf("minor version skew %d exceeds the supported maximum of 1 (use auto-step)",
				tgt.Minor()-cur.Minor()),
		}
	}
	return nil
}

// PlanSteps returns the ordered list of versions to upgrade through to
// reach target. A target within one minor of current yields a single step.
// A larger jump is only allowed with autoStep, which inserts the latest
// patch release of every skipped minor, resolved through the resolver.
func PlanSteps(ctx context.Context, resolver PatchResolver, current, target string, autoStep bool) ([]string, error) {
	cur, err := ParseVersion(current)
	if err != nil {
		return nil, err
	}
	tgt, err := ParseVersion(target)
	if err != nil {
		return nil, err
	}

	if tgt.LessThan(cur) || (cur.AtLeast(tgt) && tgt.AtLeast(cur)) || cur.Major() != tgt.Major() {
		return nil, validateHop(cur, tgt, current, target)
	}
	if tgt.Minor() <= cur.Minor()+1 {
		return []string{target}, nil
	}
	if !autoStep {
		return nil, validateHop(cur, tgt, current, target)
	}

	var steps []string
	prev := cur
	for minor := cur.Minor() + 1; minor < tgt.Minor(); minor++ {
		series := fmt.Sprintf("%d.%d", cur.Major(), minor)
		patch, err := resolver.LatestPatch(ctx, series)
		if err != nil {
			return nil, fmt.Errorf("resolve latest %s patch: %w", series, err)
		}
		pv, err := ParseVersion(patch)
		if err != nil {
			return nil, fmt.Errorf("resolver returned invalid version for %s: %w", series, err)
		}
		if pv.Major() != cur.Major() || pv.Minor() != minor {
			return nil, fmt.Errorf("resolver returned %s for series %s", patch, series)
		}
		if err := validateHop(prev, pv, prev.String(), patch); err != nil {
			return nil, err
		}
		steps = append(steps, patch)
		prev = pv
	}
	if err := validateHop(prev, tgt, prev.String(), target); err != nil {
		return nil, err
	}
	return append(steps, target), nil
}
