package scope

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizeCodes_SplitsCommaPackedElements(t *testing.T) {
	got := NormalizeCodes([]string{"ACME", "ACME-EU,ACME-US", " ACME ", ""})
	want := []string{"ACME", "ACME-EU", "ACME-US"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestResolve_IncludesDescendants(t *testing.T) {
	h := NewStaticHierarchy(map[string][]string{
		"ACME": {"ACME-EU", "ACME-US"},
	})

	set, err := Resolve(context.Background(), h, "user@acme", []string{"ACME"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for _, code := range []string{"ACME", "ACME-EU", "ACME-US"} {
		if !set.Contains(code) {
			t.Fatalf("expected scope to contain %q, got %v", code, set.Codes())
		}
	}
	if set.Codes()[0] != "ACME" {
		t.Fatalf("expected parent first, got %v", set.Codes())
	}
}

func TestResolve_EmptyDeclaredFailsClosed(t *testing.T) {
	h := NewStaticHierarchy(nil)

	_, err := Resolve(context.Background(), h, "user@acme", nil)
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
}

type failingHierarchy struct{}

func (failingHierarchy) Expand(ctx context.Context, code string) ([]string, error) {
	return nil, errors.New("hierarchy unavailable")
}

func TestResolve_HierarchyErrorFailsClosed(t *testing.T) {
	_, err := Resolve(context.Background(), failingHierarchy{}, "user@acme", []string{"ACME"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestStaticHierarchy_UnknownCodeIsLeaf(t *testing.T) {
	h := NewStaticHierarchy(map[string][]string{"ACME": {"ACME-EU"}})

	expanded, err := h.Expand(context.Background(), "NOPE")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(expanded) != 0 {
		t.Fatalf("expected no descendants for unknown code, got %v", expanded)
	}
}

func TestStaticHierarchy_TransitiveAndCycleSafe(t *testing.T) {
	h := NewStaticHierarchy(map[string][]string{
		"A": {"B"},
		"B": {"C", "A"},
	})

	expanded, err := h.Expand(context.Background(), "A")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	found := map[string]bool{}
	for _, c := range expanded {
		found[c] = true
	}
	if !found["B"] || !found["C"] {
		t.Fatalf("expected B and C in expansion, got %v", expanded)
	}
	if found["A"] {
		t.Fatalf("expansion should not echo the root, got %v", expanded)
	}
}

func TestIdentityRegistry_IntersectionAndWildcard(t *testing.T) {
	r := NewIdentityRegistry(map[string][]string{
		"user@acme": {"ACME", "ACME-EU"},
		"ops@corp":  {"*"},
	})

	got := r.Allowed("user@acme", []string{"ACME", "OTHER"})
	if len(got) != 1 || got[0] != "ACME" {
		t.Fatalf("expected intersection [ACME], got %v", got)
	}

	got = r.Allowed("ops@corp", []string{"ANY", "THING"})
	if len(got) != 2 {
		t.Fatalf("expected wildcard identity to pass declared codes, got %v", got)
	}

	got = r.Allowed("stranger@x", []string{"ACME"})
	if len(got) != 0 {
		t.Fatalf("expected unknown identity to get nothing, got %v", got)
	}
}
