package power

import "codeberg.org/mutker/tdpctl/internal/errors"

const (
	ErrNoSupply     = errors.ErrorCode("power_no_supply_found")
	ErrReadCapacity = errors.ErrorCode("power_read_capacity_failed")
)
