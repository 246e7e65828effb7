package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient marks a probe failure the poller may retry under its
	// attempt and wall-clock budgets. Never surfaced per-probe.
	ErrTransient = errors.New("transient failure")

	// ErrFatal marks an explicit failure signal from the remote; the poll
	// terminates immediately, no retry.
	ErrFatal = errors.New("fatal failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
