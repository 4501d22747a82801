package application

import "testing"

func TestPolicyDefaultExpression(t *testing.T) {
	p, err := NewEarmarkPolicy("quantity > 0 && quantity <= available")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	cases := []struct {
		name      string
		quantity  int64
		available int64
		want      bool
	}{
		{"within stock", 10, 100, true},
		{"exactly stock", 100, 100, true},
		{"over stock", 101, 100, false},
		{"zero quantity", 0, 100, false},
	}
	for _, tc := range cases {
		got, err := p.Allow("widget", tc.quantity, tc.available)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: allow = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPolicyCanReferenceAssetName(t *testing.T) {
	p, err := NewEarmarkPolicy(`asset != "restricted" || quantity <= 10`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if got, _ := p.Allow("widget", 100, 1000); !got {
		t.Fatal("unrestricted asset should pass")
	}
	if got, _ := p.Allow("restricted", 100, 1000); got {
		t.Fatal("restricted asset over cap should be denied")
	}
	if got, _ := p.Allow("restricted", 5, 1000); !got {
		t.Fatal("restricted asset under cap should pass")
	}
}

func TestPolicyRejectsInvalidExpressions(t *testing.T) {
	if _, err := NewEarmarkPolicy("quantity +"); err == nil {
		t.Fatal("expected compile error for malformed expression")
	}
	if _, err := NewEarmarkPolicy("quantity + available"); err == nil {
		t.Fatal("expected error for non-bool expression")
	}
}
