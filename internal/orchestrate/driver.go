// Package orchestrate runs operation steps across a node fleet, either one
// node at a time or fanned out, with resumable progress tracking.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/ssh"
	"github.com/kubewright/kubewright/internal/state"
)

// Step is one unit of per-node work. Pre and Post are optional; Post runs
// after Run regardless of outcome and receives Run's error so it can clean
// up after a failure.
type Step struct {
	Name string
	Pre  func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error
	Run  func(ctx context.Context, exec ssh.Executor, addr nodes.Address) error
	Post func(ctx context.Context, exec ssh.Executor, addr nodes.Address, runErr error) error
}

// NodeStepError identifies the exact node and step where an operation
// stopped.
type NodeStepError struct {
	Node nodes.Address
	Step string
	Err  error
}

func (e *NodeStepError) Error() string {
	return fmt.Sprintf("step %q on %s: %v", e.Step, e.Node.Key(), e.Err)
}

func (e *NodeStepError) Unwrap() error { return e.Err }

// RollbackError signals that a step failed but the node was reverted to a
// known-good state. The run still aborts; the report shows the node as
// rolled back rather than failed.
type RollbackError struct {
	To  string
	Err error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rolled back to %s after: %v", e.To, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// Driver executes steps against nodes through an executor factory and
// records completed steps in the state store so a resumed run skips them.
type Driver struct {
	factory ssh.Factory
	store   *state.Store

	mu      sync.Mutex
	results []StepResult
}

func NewDriver(factory ssh.Factory, store *state.Store) *Driver {
	return &Driver{factory: factory, store: store}
}

// Results returns the outcome of every step attempted so far, in order.
func (d *Driver) Results() []StepResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]StepResult, len(d.results))
	copy(out, d.results)
	return out
}

func stepKey(step Step, addr nodes.Address) string {
	return step.Name + "/" + addr.Key()
}

// RunSequential executes the step on each node in list order, stopping at
// the first failure. Completed (node, step) pairs recorded in the store are
// skipped without opening a connection.
func (d *Driver) RunSequential(ctx context.Context, list *nodes.List, steps ...Step) error {
	log := logging.Component("orchestrate")
	for _, addr := range list.All() {
		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := stepKey(step, addr)
			if d.store.IsStepDone(key) {
				log.Info().Str("host", addr.Key()).Str("step", step.Name).Msg("already done, skipping")
				d.record(addr, step.Name, StatusSkipped, "", 0)
				continue
			}
			if err := d.runOne(ctx, addr, step); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunParallel executes the step on every node concurrently and waits for
// all of them. Unlike RunSequential it does not stop at the first failure;
// all per-node errors are collected into one ConnectError-style report.
func (d *Driver) RunParallel(ctx context.Context, list *nodes.List, step Step) error {
	type outcome struct {
		addr nodes.Address
		err  error
	}

	// One goroutine per node, no pooling: every node owns its execution
	// context for the whole step.
	results := make([]outcome, list.Len())
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range list.All() {
		i, addr := i, addr
		g.Go(func() error {
			if d.store.IsStepDone(stepKey(step, addr)) {
				d.recordLocked(addr, step.Name, StatusSkipped, "", 0)
				return nil
			}
			results[i] = outcome{addr, d.runOneParallel(gctx, addr, step)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failures := make(map[string]error)
	for _, r := range results {
		if r.err != nil {
			failures[r.addr.Key()] = r.err
		}
	}
	if len(failures) > 0 {
		return &ssh.ConnectError{Failures: failures}
	}
	return nil
}

func (d *Driver) runOne(ctx context.Context, addr nodes.Address, step Step) error {
	status, detail, dur, err := d.execute(ctx, addr, step)
	d.record(addr, step.Name, status, detail, dur)
	return err
}

func (d *Driver) runOneParallel(ctx context.Context, addr nodes.Address, step Step) error {
	status, detail, dur, err := d.execute(ctx, addr, step)
	d.recordLocked(addr, step.Name, status, detail, dur)
	return err
}

func (d *Driver) execute(ctx context.Context, addr nodes.Address, step Step) (Status, string, time.Duration, error) {
	log := logging.Component("orchestrate").With().Str("host", addr.Key()).Logger()
	start := time.Now()

	fail := func(err error) (Status, string, time.Duration, error) {
		status := StatusFailed
		var rb *RollbackError
		if errors.As(err, &rb) {
			status = StatusRolledBack
		}
		return status, err.Error(), time.Since(start), &NodeStepError{Node: addr, Step: step.Name, Err: err}
	}

	exec, err := d.factory.New(addr)
	if err != nil {
		return fail(err)
	}
	defer exec.Close()

	log.Info().Str("step", step.Name).Msg("running step")

	if step.Pre != nil {
		if err := step.Pre(ctx, exec, addr); err != nil {
			return fail(fmt.Errorf("pre-hook: %w", err))
		}
	}

	runErr := step.Run(ctx, exec, addr)

	if step.Post != nil {
		if postErr := step.Post(ctx, exec, addr, runErr); postErr != nil {
			if runErr == nil {
				return fail(fmt.Errorf("post-hook: %w", postErr))
			}
			log.Warn().Err(postErr).Str("step", step.Name).Msg("post-hook failed during cleanup")
		}
	}
	if runErr != nil {
		return fail(runErr)
	}

	if err := d.store.MarkStepDone(ctx, stepKey(step, addr)); err != nil {
		return fail(fmt.Errorf("record step: %w", err))
	}
	return StatusOK, "", time.Since(start), nil
}
