package nodes

import (
	"errors"
	"testing"
)

func TestParseUserAndHost(t *testing.T) {
	addr, err := Parse("admin@10.0.0.1", "root")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if addr.User != "admin" || addr.Host != "10.0.0.1" {
		t.Fatalf("unexpected address: %+v", addr)
	}
}

func TestParseDefaultUser(t *testing.T) {
	addr, err := Parse("10.0.0.1", "root")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if addr.User != "root" || addr.Host != "10.0.0.1" {
		t.Fatalf("unexpected address: %+v", addr)
	}
}

func TestParseBracketedIPv6(t *testing.T) {
	addr, err := Parse("user@[fd00::1]", "root")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if addr.User != "user" || addr.Host != "[fd00::1]" {
		t.Fatalf("unexpected address: %+v", addr)
	}
	if addr.String() != "user@[fd00::1]" {
		t.Fatalf("bracket form must be preserved verbatim, got %q", addr.String())
	}
	if addr.BareHost() != "fd00::1" {
		t.Fatalf("BareHost: got %q", addr.BareHost())
	}
}

func TestParseRejectsUnbracketedIPv6(t *testing.T) {
	_, err := Parse("fd00::1", "root")
	var invalid *InvalidAddressError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAddressError, got %v", err)
	}
}

func TestParseRejectsOptionInjection(t *testing.T) {
	for _, entry := range []string{"-oProxyCommand=evil@10.0.0.1", "user@-badhost"} {
		if _, err := Parse(entry, "root"); err == nil {
			t.Fatalf("expected error for %q", entry)
		}
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	for _, entry := range []string{"", "   ", "user@"} {
		if _, err := Parse(entry, "root"); err == nil {
			t.Fatalf("expected error for %q", entry)
		}
	}
}

func TestBracket(t *testing.T) {
	if got := Bracket("fd00::1"); got != "[fd00::1]" {
		t.Fatalf("Bracket: got %q", got)
	}
	if got := Bracket("[fd00::1]"); got != "[fd00::1]" {
		t.Fatalf("already-bracketed host changed: %q", got)
	}
	if got := Bracket("10.0.0.1"); got != "10.0.0.1" {
		t.Fatalf("IPv4 host changed: %q", got)
	}
}
