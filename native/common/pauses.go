package common

import "sync"

// PauseSet is an in-memory pause switchboard satisfying PauseView. Toggling
// is expected to be wired behind an admin surface by the caller.
type PauseSet struct {
	mu      sync.RWMutex
	modules map[string]bool
}

func NewPauseSet() *PauseSet {
	return &PauseSet{modules: make(map[string]bool)}
}

func (p *PauseSet) SetPaused(module string, paused bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modules[module] = paused
}

func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[module]
}
