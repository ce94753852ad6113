package nodes

import "strings"

// List is an ordered sequence of node addresses. Order is significant:
// index 0 of a control-plane list is the bootstrap/primary node.
type List struct {
	addrs []Address
}

// ParseList builds a List from a comma-separated node string, applying
// defaultUser to entries without a user segment. Entries are validated and
// de-duplicated by (user, host); a duplicate is an error rather than a
// silent drop.
func ParseList(csv, defaultUser string) (*List, error) {
	entries := splitCSV(csv)

	list := &List{}
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		addr, err := Parse(entry, defaultUser)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[addr.Key()]; dup {
			return nil, &DuplicateNodeError{Entry: entry}
		}
		seen[addr.Key()] = struct{}{}
		list.addrs = append(list.addrs, addr)
	}

	return list, nil
}

// Normalize trims whitespace around each CSV entry, drops empty entries and
// duplicate occurrences after the first, and returns the cleaned CSV along
// with the number of surviving entries. Unlike ParseList it never fails:
// it is the lenient pass run before validation so error messages refer to
// the cleaned form.
func Normalize(csv string) (string, int) {
	entries := splitCSV(csv)

	seen := make(map[string]struct{}, len(entries))
	kept := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		kept = append(kept, entry)
	}

	return strings.Join(kept, ","), len(kept)
}

// ValidateAll parses every entry of the CSV with the given default user and
// fails on the first invalid or duplicate entry.
func ValidateAll(csv, defaultUser string) error {
	_, err := ParseList(csv, defaultUser)
	return err
}

// FromAddresses builds a List from already-parsed addresses, preserving
// order. No de-duplication is applied.
func FromAddresses(addrs ...Address) *List {
	out := &List{addrs: make([]Address, len(addrs))}
	copy(out.addrs, addrs)
	return out
}

// Len returns the number of addresses in the list.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.addrs)
}

// Get returns the address at index i.
func (l *List) Get(i int) Address {
	return l.addrs[i]
}

// All returns the addresses in order. The returned slice is shared; callers
// must not mutate it.
func (l *List) All() []Address {
	if l == nil {
		return nil
	}
	return l.addrs
}

// Reversed returns a new List with the addresses in reverse order. Used by
// teardown, which dismantles control planes primary-last.
func (l *List) Reversed() *List {
	out := &List{addrs: make([]Address, l.Len())}
	for i, addr := range l.addrs {
		out.addrs[l.Len()-1-i] = addr
	}
	return out
}

func splitCSV(csv string) []string {
	var entries []string
	for _, raw := range strings.Split(csv, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
