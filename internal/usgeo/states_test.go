package usgeo

import "testing"

func TestValidState(t *testing.T) {
	valid := []string{"CA", "NY", "TX", "DC", "WY"}
	for _, code := range valid {
		if !ValidState(code) {
			t.Errorf("ValidState(%q) = false, want true", code)
		}
	}

	invalid := []string{"", "ca", "C", "CAL", "ZZ", "PR"}
	for _, code := range invalid {
		if ValidState(code) {
			t.Errorf("ValidState(%q) = true, want false", code)
		}
	}
}

func TestFIPS(t *testing.T) {
	f, ok := FIPS("CA")
	if !ok || f != "06" {
		t.Errorf("FIPS(CA) = %q, %v; want 06, true", f, ok)
	}
	if _, ok := FIPS("ZZ"); ok {
		t.Error("FIPS(ZZ) should not resolve")
	}
}

func TestCodesSortedAndComplete(t *testing.T) {
	codes := Codes()
	if len(codes) != len(StateFIPS) {
		t.Fatalf("Codes() returned %d entries, want %d", len(codes), len(StateFIPS))
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] >= codes[i] {
			t.Fatalf("Codes() not sorted at %d: %s >= %s", i, codes[i-1], codes[i])
		}
	}
}
