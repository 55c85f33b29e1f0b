package state

import "codeberg.org/mutker/tdpctl/internal/errors"

const (
	ErrStateRead    = errors.ErrorCode("state_read_failed")
	ErrStateWrite   = errors.ErrorCode("state_write_failed")
	ErrStateCorrupt = errors.ErrorCode("state_corrupt")
	ErrStateLock    = errors.ErrorCode("state_lock_failed")
)
