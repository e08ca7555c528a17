package match

import "errors"

// Lifecycle errors are expected conditions returned to callers, never
// panics. Move validation failures keep their rules.MoveError type and pass
// through untouched.
var (
	ErrMatchNotFound  = errors.New("MATCH_NOT_FOUND")
	ErrAlreadyStarted = errors.New("ALREADY_STARTED")
	ErrMatchNotActive = errors.New("MATCH_NOT_ACTIVE")
	ErrAgentTimeout   = errors.New("AGENT_TIMEOUT")
	ErrSideNotBound   = errors.New("SIDE_NOT_BOUND")
	ErrDuplicateID    = errors.New("DUPLICATE_MATCH_ID")
)
