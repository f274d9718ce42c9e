package graph

import "errors"

// Sentinel errors for the graph store and its callers. Matched with
// errors.Is rather than type assertions, the way database/sql exposes
// sql.ErrNoRows.
var (
	ErrNotFound              = errors.New("graph: not found")
	ErrConflict              = errors.New("graph: conflict")
	ErrValidation            = errors.New("graph: validation failed")
	ErrCycle                 = errors.New("graph: cycle detected")
	ErrIO                    = errors.New("graph: io error")
	ErrCorrupt               = errors.New("graph: corrupt record")
	ErrCancelled             = errors.New("graph: operation cancelled")
	ErrTimeout               = errors.New("graph: operation timed out")
	ErrDependencyUnavailable = errors.New("graph: dependency unavailable")
	ErrPathRefused           = errors.New("graph: path refused")
)
