// Package ops implements the cluster operations: deploy, upgrade, backup,
// restore, renew-certs and teardown. Each operation follows the same shape:
// preflight every node, distribute the script bundle, walk the nodes
// through an orchestration driver with resumable state, and render a
// per-step report.
package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kubewright/kubewright/internal/bundle"
	"github.com/kubewright/kubewright/internal/config"
	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/orchestrate"
	"github.com/kubewright/kubewright/internal/ssh"
	"github.com/kubewright/kubewright/internal/state"
)

// Env carries the pieces shared by every operation. The CLI builds one Env
// per invocation; tests inject a fake factory.
type Env struct {
	Config        *config.Config
	Factory       ssh.Factory
	ControlPlanes *nodes.List
	Workers       *nodes.List
	Out           io.Writer
	Cleanup       *orchestrate.CleanupStack
}

// Primary returns the bootstrap control-plane node (index 0).
func (e *Env) Primary() nodes.Address {
	return e.ControlPlanes.Get(0)
}

// AllNodes returns control planes followed by workers as one list.
func (e *Env) AllNodes() *nodes.List {
	addrs := append([]nodes.Address{}, e.ControlPlanes.All()...)
	addrs = append(addrs, e.Workers.All()...)
	return nodes.FromAddresses(addrs...)
}

func (e *Env) out() io.Writer {
	if e.Out != nil {
		return e.Out
	}
	return os.Stdout
}

// NewFactory builds the executor factory the configuration asks for, along
// with the per-operation trust file it writes host keys into.
func NewFactory(cfg *config.Config, operationLabel string) (ssh.Factory, *ssh.TrustHandle, error) {
	sc, err := ssh.NewSessionConfig(cfg.SSH, cfg.Remote)
	if err != nil {
		return nil, nil, err
	}

	// The native transport cannot hand the prompt to an ssh binary, so an
	// interactive password is collected once up front.
	if cfg.SSH.Transport == config.TransportNative &&
		sc.Auth.Method == ssh.AuthPassword && sc.Auth.Password == "" {
		password, err := ssh.PromptPassword("SSH password: ")
		if err != nil {
			return nil, nil, err
		}
		sc.Auth.Password = password
	}

	trust, err := ssh.SetupSessionTrust(sc, operationLabel)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.SSH.Transport {
	case config.TransportNative:
		return &ssh.NativeFactory{Session: sc, Trust: trust}, trust, nil
	default:
		return &ssh.SystemFactory{Session: sc, Trust: trust}, trust, nil
	}
}

// run bundles the per-operation machinery built by setup.
type run struct {
	store  *state.Store
	dist   *bundle.Distribution
	driver *orchestrate.Driver
}

// scriptFor returns the remote bundle path on a node. Distribution covers
// every node up front, so a miss means the node list changed mid-operation.
func (r *run) scriptFor(addr nodes.Address) (string, error) {
	script, ok := r.dist.ScriptFor(addr)
	if !ok {
		return "", fmt.Errorf("no bundle distributed to %s", addr.Key())
	}
	return script, nil
}

// setup performs the common preamble: preflight all nodes, open or resume
// the state store, and distribute the bundle. Registered cleanups remove
// the remote bundle directories and close the store.
func (e *Env) setup(ctx context.Context, kind string, resume bool) (*run, error) {
	log := logging.WithOperation(kind, "")

	if e.ControlPlanes.Len() == 0 {
		return nil, fmt.Errorf("at least one control-plane node is required")
	}

	if err := ssh.Preflight(ctx, e.Factory, e.ControlPlanes, e.Workers); err != nil {
		return nil, fmt.Errorf("preflight: %w", err)
	}
	log.Info().Int("control_planes", e.ControlPlanes.Len()).Int("workers", e.Workers.Len()).
		Msg("all nodes reachable")

	var st *state.Store
	var err error
	if resume {
		var id string
		id, err = state.FindResumable(ctx, e.Config.StateDir(), kind)
		if errors.Is(err, state.ErrStoreNotFound) {
			return nil, fmt.Errorf("no resumable %s operation found", kind)
		}
		if err == nil {
			st, err = state.Load(ctx, e.Config.StateDir(), kind, id)
		}
	} else {
		st, err = state.Init(ctx, e.Config.StateDir(), kind)
	}
	if err != nil {
		return nil, fmt.Errorf("open operation state: %w", err)
	}
	e.Cleanup.Push("close state store", func(context.Context) error {
		return st.Close()
	})

	dist, err := bundle.Distribute(ctx, e.Factory, e.ControlPlanes, e.Workers)
	if err != nil {
		return nil, err
	}
	e.Cleanup.Push("remove remote bundles", func(cctx context.Context) error {
		dist.CleanupAll(cctx, e.ControlPlanes, e.Workers)
		return nil
	})

	return &run{
		store:  st,
		dist:   dist,
		driver: orchestrate.NewDriver(e.Factory, st),
	}, nil
}

// finish renders the report and, on success, seals the state store so the
// operation can no longer be resumed.
func (e *Env) finish(ctx context.Context, r *run, opErr error) error {
	if results := r.driver.Results(); len(results) > 0 {
		fmt.Fprintln(e.out())
		if err := orchestrate.WriteReport(e.out(), results); err != nil {
			logging.Warn().Err(err).Msg("cannot render report")
		}
		logging.Info().Str("summary", orchestrate.Summarize(results)).Msg("operation finished")
	}

	if opErr != nil {
		e.collectFailureDiagnostics(ctx, opErr)
		return opErr
	}
	if err := r.store.Complete(ctx); err != nil {
		return fmt.Errorf("seal operation state: %w", err)
	}
	return nil
}

func (e *Env) collectFailureDiagnostics(ctx context.Context, opErr error) {
	if !e.Config.Diagnostics.Enabled {
		return
	}
	var nse *orchestrate.NodeStepError
	if !errors.As(opErr, &nse) {
		return
	}
	orchestrate.CollectDiagnostics(ctx, e.Factory, nse.Node, e.Config.DiagnosticsDir())
}

// execOn runs one command on a node outside the driver, for queries whose
// output the operation needs rather than records.
func (e *Env) execOn(ctx context.Context, addr nodes.Address, cmd string) (string, error) {
	exec, err := e.Factory.New(addr)
	if err != nil {
		return "", err
	}
	defer exec.Close()
	stdout, _, err := exec.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// nodeName asks a node for its hostname, which is the name kubeadm
// registers it under.
func (e *Env) nodeName(ctx context.Context, addr nodes.Address) (string, error) {
	name, err := e.execOn(ctx, addr, "hostname")
	if err != nil {
		return "", fmt.Errorf("query hostname of %s: %w", addr.Key(), err)
	}
	if name == "" {
		return "", fmt.Errorf("%s reported an empty hostname", addr.Key())
	}
	return strings.ToLower(name), nil
}
