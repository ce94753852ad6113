package bundle

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func testPayload() fstest.MapFS {
	return fstest.MapFS{
		"scripts/manifest.yaml": {Data: []byte(
			"modules:\n  - lib/a.sh\n  - lib/b.sh\nentrypoint: main.sh\n")},
		"scripts/lib/a.sh": {Data: []byte("a() { echo a; }\n")},
		"scripts/lib/b.sh": {Data: []byte("b() { a; echo b; }\n")},
		"scripts/main.sh":  {Data: []byte("b \"$@\"\n")},
	}
}

func TestBuildOrdersModulesPerManifest(t *testing.T) {
	out, err := buildFrom(testPayload(), "scripts")
	if err != nil {
		t.Fatalf("buildFrom: %v", err)
	}
	script := string(out)

	ia := strings.Index(script, "module: lib/a.sh")
	ib := strings.Index(script, "module: lib/b.sh")
	im := strings.Index(script, "module: main.sh")
	if ia < 0 || ib < 0 || im < 0 {
		t.Fatalf("missing module sections in:\n%s", script)
	}
	if !(ia < ib && ib < im) {
		t.Fatalf("modules out of order: a=%d b=%d main=%d", ia, ib, im)
	}
}

func TestBuildOfflineMarkerIsFirstStatement(t *testing.T) {
	out, err := buildFrom(testPayload(), "scripts")
	if err != nil {
		t.Fatalf("buildFrom: %v", err)
	}
	lines := strings.Split(string(out), "\n")
	if !strings.HasPrefix(lines[0], "#!") {
		t.Fatalf("first line is not a shebang: %q", lines[0])
	}
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed != OfflineMarker {
			t.Fatalf("first executable statement is %q, want %q", trimmed, OfflineMarker)
		}
		return
	}
	t.Fatal("no executable statements found")
}

func TestBuildEmbeddedPayload(t *testing.T) {
	out, err := Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	script := string(out)
	for _, want := range []string{"kw_main", "kw_upgrade", "kw_backup_etcd", "kw_init_first_control_plane"} {
		if !strings.Contains(script, want) {
			t.Errorf("built bundle missing %s", want)
		}
	}
}

func TestBuildRejectsBadManifest(t *testing.T) {
	fsys := testPayload()
	fsys["scripts/manifest.yaml"] = &fstest.MapFile{Data: []byte("modules: []\nentrypoint: main.sh\n")}
	if _, err := buildFrom(fsys, "scripts"); err == nil {
		t.Fatal("expected error for empty module list")
	}

	fsys["scripts/manifest.yaml"] = &fstest.MapFile{Data: []byte("modules:\n  - lib/a.sh\n")}
	if _, err := buildFrom(fsys, "scripts"); err == nil {
		t.Fatal("expected error for missing entrypoint")
	}
}

func TestValidateRejectsMalformedScripts(t *testing.T) {
	cases := []struct {
		name   string
		script string
	}{
		{"empty", ""},
		{"no shebang", OfflineMarker + "\necho hi\n"},
		{"marker not first", "#!/usr/bin/env bash\necho hi\n" + OfflineMarker + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate([]byte(tc.script))
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
		})
	}
}
