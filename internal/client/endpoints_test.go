package client

import (
	"testing"

	"bulkorder/internal/pkg/config"
)

func threeEndpoints() []Endpoint {
	return []Endpoint{
		{Name: "a", Address: "http://a:8080"},
		{Name: "b", Address: "http://b:8080"},
		{Name: "c", Address: "http://c:8080"},
	}
}

func TestStickySelectorStaysUntilFailover(t *testing.T) {
	s := NewStickySelector(threeEndpoints())

	first := s.Next()
	for i := 0; i < 10; i++ {
		if got := s.Next(); got != first {
			t.Fatalf("sticky selector switched without failover: %v -> %v", first, got)
		}
	}

	s.Failover()
	second := s.Next()
	if second == first {
		t.Fatal("failover must move to a different endpoint")
	}
	for i := 0; i < 10; i++ {
		if got := s.Next(); got != second {
			t.Fatalf("selector must stick to the new endpoint, got %v", got)
		}
	}
}

func TestStickySelectorWrapsAround(t *testing.T) {
	s := NewStickySelector(threeEndpoints())
	for i := 0; i < 3; i++ {
		s.Failover()
	}
	if got := s.Next(); got.Name != "a" {
		t.Fatalf("after full cycle got %v, want a", got)
	}
}

func TestStickySelectorSingleEndpoint(t *testing.T) {
	s := NewStickySelector([]Endpoint{{Name: "only", Address: "http://only:8080"}})
	s.Failover()
	if got := s.Next(); got.Name != "only" {
		t.Fatalf("single endpoint must stay selected, got %v", got)
	}
}

func TestStickyByNameSelector(t *testing.T) {
	s, err := NewStickyByNameSelector(threeEndpoints(), "b")
	if err != nil {
		t.Fatalf("NewStickyByNameSelector: %v", err)
	}
	if got := s.Next(); got.Name != "b" {
		t.Fatalf("starting endpoint = %v, want b", got)
	}
	s.Failover()
	if got := s.Next(); got.Name == "b" {
		t.Fatal("failover must leave the named endpoint")
	}

	if _, err := NewStickyByNameSelector(threeEndpoints(), "nope"); err == nil {
		t.Fatal("unknown endpoint name must be rejected")
	}
}

func TestRandomStickySelectorSticks(t *testing.T) {
	s := NewRandomStickySelector(threeEndpoints())
	first := s.Next()
	for i := 0; i < 10; i++ {
		if got := s.Next(); got != first {
			t.Fatalf("random-sticky switched without failover: %v -> %v", first, got)
		}
	}
}

func TestRandomSelectorStaysInSet(t *testing.T) {
	endpoints := threeEndpoints()
	s := NewRandomSelector(endpoints)
	valid := map[string]bool{}
	for _, e := range endpoints {
		valid[e.Name] = true
	}
	for i := 0; i < 50; i++ {
		if got := s.Next(); !valid[got.Name] {
			t.Fatalf("selector returned unknown endpoint %v", got)
		}
	}
}

func TestNewSelectorStrategies(t *testing.T) {
	cfg := config.ClientConfig{
		Endpoints: []config.Endpoint{{Name: "a", Address: "http://a"}},
		Preferred: "a",
	}

	for _, strategy := range []string{"", "sticky", "sticky-by-name", "random-sticky", "random-switching"} {
		cfg.Selection = strategy
		if _, err := NewSelector(cfg); err != nil {
			t.Fatalf("strategy %q: %v", strategy, err)
		}
	}

	cfg.Selection = "bogus"
	if _, err := NewSelector(cfg); err == nil {
		t.Fatal("unknown strategy must be rejected")
	}

	cfg = config.ClientConfig{Selection: "sticky"}
	if _, err := NewSelector(cfg); err == nil {
		t.Fatal("empty endpoint list must be rejected")
	}
}
