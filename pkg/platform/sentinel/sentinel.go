package sentinel

import "errors"

// Sentinel errors for infrastructure and input facts. Stores, the normalizer and the
// pipeline return these (optionally wrapped) so callers can branch with errors.Is.
//
// - ErrNotFound: no record (e.g. no completed run yet)
// - ErrNoValidEvents: the input held no usable subscription events
// - ErrUnknownPlan: an event referenced a plan missing from the catalog
// - ErrRunInProgress: a run for this process is already executing
// - ErrInvalidConfig: configuration failed validation
// - ErrUnavailable: a backing service is temporarily unavailable
var (
	ErrNotFound      = errors.New("not found")
	ErrNoValidEvents = errors.New("no valid events")
	ErrUnknownPlan   = errors.New("unknown plan")
	ErrRunInProgress = errors.New("run in progress")
	ErrInvalidConfig = errors.New("invalid config")
	ErrUnavailable   = errors.New("unavailable")
)
