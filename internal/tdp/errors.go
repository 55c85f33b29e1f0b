package tdp

import "codeberg.org/mutker/tdpctl/internal/errors"

const (
	// Actuation Errors
	ErrApplyFailed      = errors.ErrorCode("tdp_apply_failed")
	ErrApplyTimeout     = errors.ErrorCode("tdp_apply_timeout")
	ErrPermissionDenied = errors.ErrorCode("tdp_permission_denied")
	ErrCommandNotFound  = errors.ErrorCode("tdp_command_not_found")
)
