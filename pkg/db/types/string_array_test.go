package dbtypes

import "testing"

func TestStringArrayRoundTrip(t *testing.T) {
	roles := StringArray{"driver", "beta tester"}

	value, err := roles.Value()
	if err != nil {
		t.Fatalf("unexpected value error: %v", err)
	}

	var decoded StringArray
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(decoded))
	}
	if !decoded.Contains("driver") || !decoded.Contains("beta tester") {
		t.Fatalf("round trip lost elements: %v", decoded)
	}
}

func TestStringArrayRoundTripQuotedElements(t *testing.T) {
	roles := StringArray{`ops,oncall`, `night "owl"`, `back\slash`, ""}

	value, err := roles.Value()
	if err != nil {
		t.Fatalf("unexpected value error: %v", err)
	}

	var decoded StringArray
	if err := decoded.Scan(value); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if len(decoded) != len(roles) {
		t.Fatalf("expected %d elements, got %d: %v", len(roles), len(decoded), decoded)
	}
	for i, want := range roles {
		if decoded[i] != want {
			t.Fatalf("element %d: expected %q, got %q", i, want, decoded[i])
		}
	}
}

func TestStringArrayScanMalformed(t *testing.T) {
	var decoded StringArray
	if err := decoded.Scan(`{"unterminated`); err == nil {
		t.Fatal("expected error for unterminated quote")
	}
	if err := decoded.Scan(`driver,passenger`); err == nil {
		t.Fatal("expected error for literal without braces")
	}
}

func TestStringArrayScanEmpty(t *testing.T) {
	var decoded StringArray
	if err := decoded.Scan("{}"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("expected empty array, got %v", decoded)
	}
}
