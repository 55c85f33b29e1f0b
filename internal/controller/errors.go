package controller

import "codeberg.org/mutker/tdpctl/internal/errors"

const (
	ErrInvalidDebounce = errors.ErrorCode("controller_invalid_debounce")
	ErrInvalidInterval = errors.ErrorCode("controller_invalid_interval")
	ErrNoPreference    = errors.ErrorCode("controller_no_preference")
)
