package ssh

import (
	"testing"
	"time"

	"github.com/kubewright/kubewright/internal/config"
	"github.com/kubewright/kubewright/internal/nodes"
)

func TestBuildSSHArgsKeyAuth(t *testing.T) {
	sc := SessionConfig{
		Port:           2222,
		Auth:           Auth{Method: AuthKey, KeyPath: "/keys/id_ed25519"},
		HostKeyPolicy:  config.HostKeyStrict,
		ConnectTimeout: 10 * time.Second,
	}

	args, target := BuildSSHArgs(sc, "/tmp/kh", nodes.Address{User: "deploy", Host: "example.com"})
	if target != "deploy@example.com" {
		t.Fatalf("target: got %q", target)
	}

	assertFlagValue(t, args, "-o", "BatchMode=yes")
	assertFlagValue(t, args, "-o", "StrictHostKeyChecking=yes")
	assertFlagValue(t, args, "-o", "UserKnownHostsFile=/tmp/kh")
	assertFlagValue(t, args, "-o", "ConnectTimeout=10")
	assertFlagValue(t, args, "-i", "/keys/id_ed25519")
	assertFlagValue(t, args, "-p", "2222")
}

func TestBuildSSHArgsPasswordDisablesBatchMode(t *testing.T) {
	sc := SessionConfig{
		Port:          22,
		Auth:          Auth{Method: AuthPasswordFile, Password: "hunter2"},
		HostKeyPolicy: config.HostKeyAcceptNew,
	}

	args, _ := BuildSSHArgs(sc, "", nodes.Address{User: "root", Host: "10.0.0.1"})
	assertFlagValue(t, args, "-o", "BatchMode=no")
	assertFlagValue(t, args, "-o", "StrictHostKeyChecking=accept-new")
	if hasFlagValue(args, "-o", "UserKnownHostsFile=") {
		t.Fatalf("empty known_hosts path must be omitted: %#v", args)
	}
	// The password itself never appears in the argument list.
	for _, arg := range args {
		if arg == "hunter2" {
			t.Fatal("password leaked into ssh args")
		}
	}
}

func TestBuildSCPArgsSubstitutesPortFlag(t *testing.T) {
	sc := SessionConfig{
		Port:          2222,
		Auth:          Auth{Method: AuthKey, KeyPath: "/keys/id_rsa"},
		HostKeyPolicy: config.HostKeyOff,
	}

	sshArgs, _ := BuildSSHArgs(sc, "/tmp/kh", nodes.Address{User: "root", Host: "h"})
	scpArgs := BuildSCPArgs(sc, "/tmp/kh")

	assertFlagValue(t, sshArgs, "-p", "2222")
	assertFlagValue(t, scpArgs, "-P", "2222")
	if hasFlagValue(scpArgs, "-p", "2222") {
		t.Fatalf("scp args must not carry the interactive port flag: %#v", scpArgs)
	}

	// Outside the port flag the option surfaces are identical.
	assertFlagValue(t, scpArgs, "-o", "StrictHostKeyChecking=no")
	assertFlagValue(t, scpArgs, "-o", "UserKnownHostsFile=/tmp/kh")
}

func TestSCPRemotePreservesIPv6Brackets(t *testing.T) {
	addr := nodes.Address{User: "root", Host: "[fd00::1]"}
	got := SCPRemote(addr, "/tmp/bundle")
	if got != "root@[fd00::1]:/tmp/bundle" {
		t.Fatalf("SCPRemote: got %q", got)
	}
}

func TestBatchModeRules(t *testing.T) {
	cases := []struct {
		name string
		auth Auth
		want bool
	}{
		{"explicit key", Auth{Method: AuthKey, KeyPath: "/k"}, true},
		{"password", Auth{Method: AuthPassword}, false},
		{"password file", Auth{Method: AuthPasswordFile, Password: "x"}, false},
		{"agent without key", Auth{Method: AuthAgent}, false},
		{"agent with explicit key", Auth{Method: AuthAgent, KeyPath: "/k"}, true},
	}

	for _, tc := range cases {
		sc := SessionConfig{Auth: tc.auth}
		if got := sc.BatchMode(); got != tc.want {
			t.Errorf("%s: BatchMode = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func assertFlagValue(t *testing.T, args []string, flag, value string) {
	t.Helper()
	if !hasFlagValue(args, flag, value) {
		t.Fatalf("expected %s %q in args: %#v", flag, value, args)
	}
}

func hasFlagValue(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}
