package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvariantViolation  = errors.New("invariant violation")
	ErrComplianceBlocked   = errors.New("compliance blocked")
	ErrQueueFull           = errors.New("queue full")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrInvalidInput        = errors.New("invalid input")
	ErrCancelled           = errors.New("cancelled")
	ErrStaleGeneration     = errors.New("stale generation")
	ErrNoPainPointMatch    = errors.New("no pain point match")
)

// InvariantError reports which entity broke which rule.
type InvariantError struct {
	Entity string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariantViolation }

func invariant(entity, format string, args ...any) error {
	return &InvariantError{Entity: entity, Reason: fmt.Sprintf(format, args...)}
}

// TransitionError is returned when a status change is outside the lattice.
type TransitionError struct {
	From, To VideoStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ComplianceBlockedError carries the full issue list shown to the reviewer.
type ComplianceBlockedError struct {
	ItemID string
	Issues []string
}

func (e *ComplianceBlockedError) Error() string {
	return fmt.Sprintf("item %s blocked: %s", e.ItemID, strings.Join(e.Issues, "; "))
}

func (e *ComplianceBlockedError) Is(target error) bool { return target == ErrComplianceBlocked }
