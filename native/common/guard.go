package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a native module has been halted by operations.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects mutating calls into a paused module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
