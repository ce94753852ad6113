package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kubewright/kubewright/internal/logging"
	"github.com/kubewright/kubewright/internal/nodes"
	"github.com/kubewright/kubewright/internal/ssh"
)

const remoteBaseDir = "/tmp"

// TransferError collects per-node distribution failures. A failed node does
// not stop distribution to the others.
type TransferError struct {
	Failures map[string]error
}

func (e *TransferError) Error() string {
	hosts := make([]string, 0, len(e.Failures))
	for h := range e.Failures {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	parts := make([]string, 0, len(hosts))
	for _, h := range hosts {
		parts = append(parts, fmt.Sprintf("%s: %v", h, e.Failures[h]))
	}
	return fmt.Sprintf("bundle transfer failed on %d node(s): %s",
		len(hosts), strings.Join(parts, "; "))
}

// Location records where a node received its bundle copy.
type Location struct {
	Dir    string
	Script string
}

// Distribution is the result of pushing one bundle to a node set. It
// tracks the remote paths for later execution and cleanup.
type Distribution struct {
	factory   ssh.Factory
	locations map[string]Location

	mu sync.Mutex
}

// Distribute builds the bundle once and uploads it to every node in the
// given lists concurrently. Each node gets its own uuid-named directory so
// concurrent operations never collide.
func Distribute(ctx context.Context, factory ssh.Factory, lists ...*nodes.List) (*Distribution, error) {
	script, err := Build()
	if err != nil {
		return nil, err
	}

	local, err := writeLocal(script)
	if err != nil {
		return nil, err
	}
	defer os.Remove(local)

	var targets []nodes.Address
	for _, l := range lists {
		targets = append(targets, l.All()...)
	}

	d := &Distribution{
		factory:   factory,
		locations: make(map[string]Location, len(targets)),
	}

	log := logging.Component("bundle")
	bar := progressbar.NewOptions(len(targets),
		progressbar.OptionSetDescription("distributing bundle"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	failures := make(map[string]error)
	var failMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range targets {
		addr := addr
		g.Go(func() error {
			loc, err := d.push(gctx, addr, local)
			bar.Add(1)
			if err != nil {
				log.Warn().Str("host", addr.Key()).Err(err).Msg("bundle transfer failed")
				failMu.Lock()
				failures[addr.Key()] = err
				failMu.Unlock()
				return nil
			}
			d.mu.Lock()
			d.locations[addr.Key()] = loc
			d.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	bar.Finish()

	if len(failures) > 0 {
		return nil, &TransferError{Failures: failures}
	}
	log.Info().Int("nodes", len(targets)).Msg("bundle distributed")
	return d, nil
}

func (d *Distribution) push(ctx context.Context, addr nodes.Address, local string) (Location, error) {
	exec, err := d.factory.New(addr)
	if err != nil {
		return Location{}, err
	}
	defer exec.Close()

	dir := fmt.Sprintf("%s/kubewright-%s", remoteBaseDir, uuid.New().String())
	script := dir + "/bundle.sh"

	if _, _, err := exec.Exec(ctx, fmt.Sprintf("mkdir -p %s", dir)); err != nil {
		return Location{}, fmt.Errorf("create remote dir: %w", err)
	}
	if err := exec.Upload(ctx, local, script); err != nil {
		return Location{}, fmt.Errorf("upload bundle: %w", err)
	}
	if _, _, err := exec.Exec(ctx, fmt.Sprintf("chmod 0755 %s", script)); err != nil {
		return Location{}, fmt.Errorf("chmod bundle: %w", err)
	}
	return Location{Dir: dir, Script: script}, nil
}

// ScriptFor returns the remote bundle path for a node.
func (d *Distribution) ScriptFor(addr nodes.Address) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	loc, ok := d.locations[addr.Key()]
	return loc.Script, ok
}

// CleanupAll removes the remote bundle directories. Failures are logged and
// otherwise ignored; a node that lost connectivity keeps a stale temp dir.
func (d *Distribution) CleanupAll(ctx context.Context, lists ...*nodes.List) {
	log := logging.Component("bundle")
	for _, l := range lists {
		for _, addr := range l.All() {
			d.mu.Lock()
			loc, ok := d.locations[addr.Key()]
			d.mu.Unlock()
			if !ok {
				continue
			}
			exec, err := d.factory.New(addr)
			if err != nil {
				log.Debug().Str("host", addr.Key()).Err(err).Msg("cleanup skipped")
				continue
			}
			if _, _, err := exec.Exec(ctx, fmt.Sprintf("rm -rf %s", loc.Dir)); err != nil {
				log.Debug().Str("host", addr.Key()).Err(err).Msg("cleanup failed")
			}
			exec.Close()
		}
	}
}

func writeLocal(script []byte) (string, error) {
	tmp, err := os.CreateTemp("", "kubewright-bundle-*.sh")
	if err != nil {
		return "", fmt.Errorf("write local bundle: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(script); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", fmt.Errorf("write local bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("write local bundle: %w", err)
	}
	return filepath.Clean(name), nil
}
