package nameserver

import (
	"testing"

	"trainctl-go/errcode"
)

func TestRegisterAndWhoIs(t *testing.T) {
	s := New()
	if err := s.RegisterAs("conductor", 7); err != nil {
		t.Fatalf("RegisterAs: %v", err)
	}
	id, err := s.WhoIs("conductor")
	if err != nil {
		t.Fatalf("WhoIs: %v", err)
	}
	if id != 7 {
		t.Fatalf("got %d want 7", id)
	}
}

func TestWhoIsUnknownNotFound(t *testing.T) {
	s := New()
	if _, err := s.WhoIs("nope"); !errcode.Is(err, errcode.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFirstComeNameCannotBeStolen(t *testing.T) {
	s := New()
	if err := s.RegisterAs("conductor", 7); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterAs("conductor", 8); !errcode.Is(err, errcode.NotOwner) {
		t.Fatalf("expected NotOwner re-registering a taken name, got %v", err)
	}
}

func TestReRegisteringSameOwnerIsNoOp(t *testing.T) {
	s := New()
	if err := s.RegisterAs("conductor", 7); err != nil {
		t.Fatal(err)
	}
	if err := s.RegisterAs("conductor", 7); err != nil {
		t.Fatalf("idempotent re-register should succeed, got %v", err)
	}
}
