package models

import "errors"

var (
	// ErrInvalidTransition is returned when an import package is asked to
	// move to a status its current status cannot reach.
	ErrInvalidTransition = errors.New("invalid import package status transition")
	// ErrNotApprovable is returned when approving a staging row that is not Valid or Warning.
	ErrNotApprovable = errors.New("staging record cannot be approved for commit")
	// ErrConflictNotPending is returned when a conflict that is no longer
	// PendingReview is resolved, ignored or escalated.
	ErrConflictNotPending = errors.New("conflict is not pending review")
)
