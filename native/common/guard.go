package common

import (
	"errors"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is administratively paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view or empty
// module name disables the check.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a concurrency-safe PauseView with operator-controlled switches.
type Pauses struct {
	mu      sync.RWMutex
	modules map[string]bool
}

// NewPauses builds an empty pause set; every module starts unpaused.
func NewPauses() *Pauses {
	return &Pauses{modules: make(map[string]bool)}
}

// Set pauses or resumes the named module.
func (p *Pauses) Set(module string, paused bool) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	p.modules[module] = paused
	p.mu.Unlock()
}

// IsPaused implements PauseView.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[module]
}
