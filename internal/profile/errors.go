package profile

import "codeberg.org/mutker/tdpctl/internal/errors"

const (
	// Validation Errors
	ErrInvalidProfile   = errors.ErrorCode("profile_invalid")
	ErrDuplicateProfile = errors.ErrorCode("profile_duplicate_name")

	// Lookup Errors
	ErrProfileNotFound = errors.ErrorCode("profile_not_found")
)
