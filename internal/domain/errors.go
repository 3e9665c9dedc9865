package domain

import "errors"

// Validation errors: rejected synchronously, never retried.
var (
	ErrInvalidCapacity     = errors.New("pool capacity must be an even integer >= 4")
	ErrInvalidPerformance  = errors.New("performance score must be in [0,1]")
	ErrUnsupportedTeamSize = errors.New("team size below supported minimum of 2")
)

// State conflicts: surfaced to the caller, not retried automatically.
var (
	ErrAlreadyQueued        = errors.New("player already waiting in a pool")
	ErrPoolFull             = errors.New("pool is at capacity")
	ErrMatchAlreadyForming  = errors.New("pool is forming, players can no longer leave")
	ErrNotReady             = errors.New("pool is not ready for team formation")
	ErrMatchAlreadyFinished = errors.New("match already finalized")
	ErrPoolNotFound         = errors.New("pool not found")
	ErrPoolNotActive        = errors.New("pool is not accepting changes")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrMatchNotFound        = errors.New("match not found")
)

// ErrInsufficientPlayers propagates from the balancer unchanged; the engine
// never silently degrades team size.
var ErrInsufficientPlayers = errors.New("not enough players for requested team size")
