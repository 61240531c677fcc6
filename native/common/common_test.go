package common

import (
	"errors"
	"testing"

	"musd/crypto"
)

func TestAuthorityMembership(t *testing.T) {
	member := crypto.MustModuleAddress("common-test-member")
	outsider := crypto.MustModuleAddress("common-test-outsider")

	authority := NewAuthority(member)
	if err := authority.Require(member); err != nil {
		t.Fatalf("require member: %v", err)
	}
	if err := authority.Require(outsider); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	authority.Add(outsider)
	if !authority.Contains(outsider) {
		t.Fatalf("added member not found")
	}
	authority.Remove(outsider)
	if authority.Contains(outsider) {
		t.Fatalf("removed member still present")
	}
}

func TestOpLockRejectsOverlappingEntry(t *testing.T) {
	lock := NewOpLock()
	if err := lock.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lock.Acquire(); !errors.Is(err, ErrMutationInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}
	lock.Release()
	if err := lock.Acquire(); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	lock.Release()
	// A double release must not unblock a second holder.
	lock.Release()
	if err := lock.Acquire(); err != nil {
		t.Fatalf("acquire after double release: %v", err)
	}
}

func TestGuardChecksPauseView(t *testing.T) {
	pauses := NewPauseSet()
	if err := Guard(pauses, "borrow"); err != nil {
		t.Fatalf("guard on unpaused module: %v", err)
	}
	pauses.SetPaused("borrow", true)
	if err := Guard(pauses, "borrow"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
	if err := Guard(nil, "borrow"); err != nil {
		t.Fatalf("nil view should not block: %v", err)
	}
}
