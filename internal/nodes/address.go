// Package nodes models remote node addresses and ordered node lists.
package nodes

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Address parsing and validation errors.
var (
	ErrEmptyHost = errors.New("node host is empty")
)

// InvalidAddressError reports a node entry that cannot be used safely.
type InvalidAddressError struct {
	Entry  string
	Reason string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid node address %q: %s", e.Entry, e.Reason)
}

// DuplicateNodeError reports two entries resolving to the same (user, host).
type DuplicateNodeError struct {
	Entry string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node address %q", e.Entry)
}

// Address identifies a remote node as user plus host. Host may be an IPv4
// literal, a hostname, or a bracketed IPv6 literal ("[fd00::1]"); the
// bracket form is preserved verbatim so it can be pasted into ssh, scp and
// display output unchanged.
type Address struct {
	User string
	Host string
}

// String renders the address in user@host form.
func (a Address) String() string {
	if a.User == "" {
		return a.Host
	}
	return a.User + "@" + a.Host
}

// Key returns the normalized identity used for de-duplication and for
// keying per-node lookups (bundle locations, report rows).
func (a Address) Key() string {
	return a.User + "@" + a.Host
}

// BareHost returns the host with IPv6 brackets stripped, for use where a
// raw address is required (ping probes, TCP dials).
func (a Address) BareHost() string {
	return strings.TrimSuffix(strings.TrimPrefix(a.Host, "["), "]")
}

// Parse splits a node entry into user and host. The split is on the last
// "@" so that user segments containing "@" (rare, but legal for some
// directories) survive. defaultUser fills in when the entry carries no
// user segment.
func Parse(entry, defaultUser string) (Address, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return Address{}, &InvalidAddressError{Entry: entry, Reason: "empty entry"}
	}

	user := defaultUser
	host := entry
	if idx := strings.LastIndex(entry, "@"); idx >= 0 {
		user = entry[:idx]
		host = entry[idx+1:]
	}

	if host == "" {
		return Address{}, &InvalidAddressError{Entry: entry, Reason: "empty host"}
	}

	// A user beginning with "-" would be parsed as an option by the ssh
	// binary; refuse it outright.
	if strings.HasPrefix(user, "-") {
		return Address{}, &InvalidAddressError{Entry: entry, Reason: "user segment must not begin with '-'"}
	}

	if err := checkHost(entry, host); err != nil {
		return Address{}, err
	}

	return Address{User: user, Host: host}, nil
}

// checkHost validates the host segment, including bracket-aware IPv6
// detection: a literal containing ":" must arrive already bracketed.
func checkHost(entry, host string) error {
	if strings.HasPrefix(host, "-") {
		return &InvalidAddressError{Entry: entry, Reason: "host must not begin with '-'"}
	}

	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		inner := host[1 : len(host)-1]
		if net.ParseIP(inner) == nil || !strings.Contains(inner, ":") {
			return &InvalidAddressError{Entry: entry, Reason: "bracketed host is not an IPv6 literal"}
		}
		return nil
	}

	if strings.Contains(host, ":") {
		return &InvalidAddressError{Entry: entry, Reason: "IPv6 literal must be bracketed, e.g. [fd00::1]"}
	}

	return nil
}

// Bracket wraps an IPv6 literal in brackets if it is not bracketed yet.
// Other hosts are returned unchanged.
func Bracket(host string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}
	return host
}
