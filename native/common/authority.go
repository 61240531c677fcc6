package common

import (
	"errors"
	"sync"

	"musd/crypto"
)

// ErrUnauthorized is returned when a caller is not a member of the permission
// set gating an administrative or restricted operation.
var ErrUnauthorized = errors.New("caller not authorized")

// Authority is a closed permission set checked against caller identity at the
// start of each gated operation.
type Authority struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewAuthority(members ...crypto.Address) *Authority {
	auth := &Authority{members: make(map[string]struct{})}
	for _, member := range members {
		auth.Add(member)
	}
	return auth
}

func (a *Authority) Add(member crypto.Address) {
	if a == nil || member.IsZero() {
		return
	}
	a.mu.Lock()
	a.members[string(member.Bytes())] = struct{}{}
	a.mu.Unlock()
}

func (a *Authority) Remove(member crypto.Address) {
	if a == nil {
		return
	}
	a.mu.Lock()
	delete(a.members, string(member.Bytes()))
	a.mu.Unlock()
}

// Contains reports membership without failing.
func (a *Authority) Contains(caller crypto.Address) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.members[string(caller.Bytes())]
	return ok
}

// Require returns ErrUnauthorized unless the caller is a member.
func (a *Authority) Require(caller crypto.Address) error {
	if !a.Contains(caller) {
		return ErrUnauthorized
	}
	return nil
}
