package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

// Module names recognised by the pause switchboard.
const (
	ModuleLedger  = "ledger"
	ModuleBet     = "bet"
	ModuleArbiter = "arbiter"
)

type PauseView interface {
	IsPaused(module string) bool
}

// PauseSet is a static PauseView keyed by lower-case module name.
type PauseSet map[string]bool

// IsPaused implements PauseView.
func (p PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	return p[strings.ToLower(strings.TrimSpace(module))]
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
