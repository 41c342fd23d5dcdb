package domain

import "github.com/zeebo/errs"

// Error classes for the workflow taxonomy. Authorization and state
// preconditions fail before any mutation; ambiguous lookups fail shut.
var (
	ErrPermission      = errs.Class("permission denied")
	ErrInvalidState    = errs.Class("invalid request state")
	ErrInvalidData     = errs.Class("invalid decision data")
	ErrNotFound        = errs.Class("not found")
	ErrConflict        = errs.Class("conflict")
	ErrAmbiguousState  = errs.Class("ambiguous request status")
	ErrAmbiguousOwner  = errs.Class("ambiguous request owner")
	ErrAlreadyAssigned = errs.Class("request already assigned")
	ErrStorage         = errs.Class("storage failure")
	ErrNotification    = errs.Class("notification failure")
)
