// Package testutil provides test doubles shared across package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/ssh"
)

// Call records one operation performed against a fake node.
type Call struct {
	Host   string
	Op     string // exec, upload, download
	Detail string
}

// FailRule makes matching exec calls fail with the given exit code. An
// empty Host matches every node; Contains is matched as a substring of the
// command line. MaxTimes limits how often the rule fires (0 = unlimited).
type FailRule struct {
	Host     string
	Contains string
	ExitCode int
	MaxTimes int

	fired int
}

// FakeFleet is a scripted ssh.Factory. All executors it hands out log into
// the shared call list, preserving global call order.
type FakeFleet struct {
	mu        sync.Mutex
	calls     []Call
	failRules []*FailRule
	responses map[string]string
	noConnect map[string]error
}

// NewFakeFleet creates an empty fleet.
func NewFakeFleet() *FakeFleet {
	return &FakeFleet{
		responses: make(map[string]string),
		noConnect: make(map[string]error),
	}
}

// New implements ssh.Factory.
func (f *FakeFleet) New(addr nodes.Address) (ssh.Executor, error) {
	f.mu.Lock()
	err := f.noConnect[addr.Host]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakeExecutor{addr: addr, fleet: f}, nil
}

// FailCommand registers a failure rule.
func (f *FakeFleet) FailCommand(rule FailRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRules = append(f.failRules, &rule)
}

// Respond sets the stdout returned for commands containing the substring.
func (f *FakeFleet) Respond(contains, stdout string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[contains] = stdout
}

// RefuseConnection makes factory construction fail for a host.
func (f *FakeFleet) RefuseConnection(host string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noConnect[host] = err
}

// Calls returns a copy of the recorded calls in global order.
func (f *FakeFleet) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the recorded calls against one host.
func (f *FakeFleet) CallsFor(host string) []Call {
	var out []Call
	for _, call := range f.Calls() {
		if call.Host == host {
			out = append(out, call)
		}
	}
	return out
}

// ExecCount counts exec calls whose command contains the substring.
func (f *FakeFleet) ExecCount(contains string) int {
	n := 0
	for _, call := range f.Calls() {
		if call.Op == "exec" && strings.Contains(call.Detail, contains) {
			n++
		}
	}
	return n
}

func (f *FakeFleet) record(call Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *FakeFleet) failureFor(host, cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rule := range f.failRules {
		if rule.Host != "" && rule.Host != host {
			continue
		}
		if !strings.Contains(cmd, rule.Contains) {
			continue
		}
		if rule.MaxTimes > 0 && rule.fired >= rule.MaxTimes {
			continue
		}
		rule.fired++
		return &ssh.ExecError{Command: cmd, ExitCode: rule.ExitCode}
	}
	return nil
}

func (f *FakeFleet) responseFor(cmd string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for contains, stdout := range f.responses {
		if strings.Contains(cmd, contains) {
			return stdout
		}
	}
	return ""
}

type fakeExecutor struct {
	addr  nodes.Address
	fleet *FakeFleet
}

func (e *fakeExecutor) Exec(ctx context.Context, cmd string) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	e.fleet.record(Call{Host: e.addr.Host, Op: "exec", Detail: cmd})
	if err := e.fleet.failureFor(e.addr.Host, cmd); err != nil {
		return nil, []byte("scripted failure"), err
	}
	return []byte(e.fleet.responseFor(cmd)), nil, nil
}

func (e *fakeExecutor) Upload(ctx context.Context, localPath, remotePath string) error {
	e.fleet.record(Call{Host: e.addr.Host, Op: "upload", Detail: fmt.Sprintf("%s -> %s", localPath, remotePath)})
	if err := e.fleet.failureFor(e.addr.Host, "upload "+remotePath); err != nil {
		return err
	}
	return nil
}

func (e *fakeExecutor) Download(ctx context.Context, remotePath, localPath string) error {
	e.fleet.record(Call{Host: e.addr.Host, Op: "download", Detail: fmt.Sprintf("%s -> %s", remotePath, localPath)})
	if err := e.fleet.failureFor(e.addr.Host, "download "+remotePath); err != nil {
		return err
	}
	return nil
}

func (e *fakeExecutor) Close() error {
	return nil
}
