package bundle

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"strings"

	"github.com/kubewright/kubewright/internal/logging"
)

//go:embed scripts
var scriptsFS embed.FS

// OfflineMarker is the first executable statement of every built bundle.
// Remote scripts check it before touching the network.
const OfflineMarker = "KUBEWRIGHT_OFFLINE=1"

// ValidationError reports a bundle that failed a structural or syntax check.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("bundle validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("bundle validation failed: %s: %s", e.Reason, e.Detail)
}

// Build concatenates the embedded script modules into a single
// self-contained bash program and validates the result.
func Build() ([]byte, error) {
	return buildFrom(scriptsFS, "scripts")
}

func buildFrom(fsys fs.FS, root string) ([]byte, error) {
	m, err := loadManifest(fsys, path.Join(root, "manifest.yaml"))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("#!/usr/bin/env bash\n")
	buf.WriteString(OfflineMarker + "\n")
	buf.WriteString("export KUBEWRIGHT_OFFLINE\n")
	buf.WriteString("set -euo pipefail\n")

	sources := append([]string{}, m.Modules...)
	sources = append(sources, m.Entrypoint)
	for _, name := range sources {
		src, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("read module %s: %w", name, err)
		}
		fmt.Fprintf(&buf, "\n# --- module: %s ---\n", name)
		buf.Write(src)
		if !bytes.HasSuffix(src, []byte("\n")) {
			buf.WriteByte('\n')
		}
	}

	out := buf.Bytes()
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks the structural invariants of a built bundle and, when a
// bash binary is available, runs a syntax-only parse over it.
func Validate(script []byte) error {
	if len(bytes.TrimSpace(script)) == 0 {
		return &ValidationError{Reason: "empty script"}
	}

	lines := strings.Split(string(script), "\n")
	if !strings.HasPrefix(lines[0], "#!") {
		return &ValidationError{Reason: "missing shebang"}
	}
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed != OfflineMarker {
			return &ValidationError{
				Reason: "offline marker must be the first executable statement",
				Detail: fmt.Sprintf("found %q", trimmed),
			}
		}
		break
	}

	return checkSyntax(script)
}

func checkSyntax(script []byte) error {
	bash, err := exec.LookPath("bash")
	if err != nil {
		logger := logging.Component("bundle")
		logger.Debug().Msg("bash not found, skipping syntax check")
		return nil
	}

	tmp, err := os.CreateTemp("", "kubewright-bundle-*.sh")
	if err != nil {
		return fmt.Errorf("create temp script: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(script); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp script: %w", err)
	}
	tmp.Close()

	out, err := exec.Command(bash, "-n", tmp.Name()).CombinedOutput()
	if err != nil {
		return &ValidationError{
			Reason: "bash syntax check failed",
			Detail: strings.TrimSpace(string(out)),
		}
	}
	return nil
}
