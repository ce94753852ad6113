package nodes

import (
	"errors"
	"testing"
)

func TestNormalizeTrimsAndDrops(t *testing.T) {
	csv, n := Normalize(" a@h1 , ,b@h2,, a@h1 ")
	if csv != "a@h1,b@h2" {
		t.Fatalf("Normalize: got %q", csv)
	}
	if n != 2 {
		t.Fatalf("expected 2 surviving entries, got %d", n)
	}
}

func TestNormalizePreservesFirstOccurrenceOrder(t *testing.T) {
	csv, _ := Normalize("b@h2,a@h1,b@h2")
	if csv != "b@h2,a@h1" {
		t.Fatalf("order not preserved: %q", csv)
	}
}

func TestValidateAllRejectsDuplicates(t *testing.T) {
	// Same (user, host) through defaulting counts as a duplicate.
	err := ValidateAll("root@10.0.0.1,10.0.0.1", "root")
	var dup *DuplicateNodeError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateNodeError, got %v", err)
	}
}

func TestValidateAllAcceptsDistinctUsers(t *testing.T) {
	if err := ValidateAll("a@10.0.0.1,b@10.0.0.1", "root"); err != nil {
		t.Fatalf("distinct users on one host should pass: %v", err)
	}
}

func TestParseListOrderAndIndexing(t *testing.T) {
	list, err := ParseList("cp1,cp2,cp3", "root")
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if list.Len() != 3 {
		t.Fatalf("Len: got %d", list.Len())
	}
	if list.Get(0).Host != "cp1" {
		t.Fatalf("index 0 must be the first entry, got %q", list.Get(0).Host)
	}

	rev := list.Reversed()
	if rev.Get(0).Host != "cp3" || rev.Get(2).Host != "cp1" {
		t.Fatalf("Reversed order wrong: %v", rev.All())
	}
	// Reversed must not mutate the original.
	if list.Get(0).Host != "cp1" {
		t.Fatalf("Reversed mutated the source list")
	}
}

func TestParseListPropagatesInvalidEntry(t *testing.T) {
	_, err := ParseList("good,fd00::1", "root")
	var invalid *InvalidAddressError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidAddressError, got %v", err)
	}
}
