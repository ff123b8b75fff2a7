package common

import "errors"

// ErrModulePaused is returned by Guard when the named product module is
// administratively paused.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the read-only pause flags configured for each product
// module sharing the ledger.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the operation when the module is paused. A nil view or empty
// module name means pausing is not configured and the operation proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switchboard is a static PauseView backed by a set of paused module names.
type Switchboard struct {
	paused map[string]bool
}

// NewSwitchboard builds a Switchboard with the supplied modules paused.
func NewSwitchboard(paused ...string) *Switchboard {
	s := &Switchboard{paused: make(map[string]bool, len(paused))}
	for _, m := range paused {
		s.paused[m] = true
	}
	return s
}

// SetPaused toggles the pause flag for a module.
func (s *Switchboard) SetPaused(module string, paused bool) {
	if s == nil {
		return
	}
	if s.paused == nil {
		s.paused = make(map[string]bool)
	}
	s.paused[module] = paused
}

// IsPaused implements PauseView.
func (s *Switchboard) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	return s.paused[module]
}
