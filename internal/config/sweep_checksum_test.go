package config

import "testing"

func TestSweepChecksum_DeterministicAcrossMapOrder(t *testing.T) {
	p1 := &Profile{Program: "sort", Image: "cds/server", Port: 8080, Runs: intPtr(3)}
	p1.Env = map[string]string{"B": "2", "A": "1"}

	p2 := &Profile{Program: "sort", Image: "cds/server", Port: 8080, Runs: intPtr(3)}
	// Same variables but inserted in opposite order.
	p2.Env = map[string]string{"A": "1", "B": "2"}

	s1, err := SweepChecksum(p1, []int{1, 2, 4})
	if err != nil {
		t.Fatalf("SweepChecksum(p1): %v", err)
	}
	s2, err := SweepChecksum(p2, []int{1, 2, 4})
	if err != nil {
		t.Fatalf("SweepChecksum(p2): %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected same checksum, got %q vs %q", s1, s2)
	}
	if len(s1) != 6 {
		t.Fatalf("expected 6-char checksum, got %q (len=%d)", s1, len(s1))
	}
}

func TestSweepChecksum_ChangesWhenSweepChanges(t *testing.T) {
	p := &Profile{Program: "sort", Image: "cds/server", Port: 8080, Runs: intPtr(3)}
	s1, err := SweepChecksum(p, []int{1, 2})
	if err != nil {
		t.Fatalf("SweepChecksum: %v", err)
	}

	s2, err := SweepChecksum(p, []int{2, 1})
	if err != nil {
		t.Fatalf("SweepChecksum after reorder: %v", err)
	}
	if s1 == s2 {
		t.Fatalf("expected checksum to change with CPU order, got %q", s1)
	}

	p.Runs = intPtr(5)
	s3, err := SweepChecksum(p, []int{1, 2})
	if err != nil {
		t.Fatalf("SweepChecksum after runs change: %v", err)
	}
	if s1 == s3 {
		t.Fatalf("expected checksum to change with runs, got %q", s1)
	}
}

func TestSweepChecksum_NilProfile(t *testing.T) {
	s, err := SweepChecksum(nil, nil)
	if err != nil || s != "" {
		t.Fatalf("expected empty checksum, got %q, %v", s, err)
	}
}
