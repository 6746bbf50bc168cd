package common

import "errors"

// Error values shared across the kernel subsystems.

var (
	EBUSY  = errors.New("Resource busy")
	EINVAL = errors.New("Invalid argument")
	ENXIO  = errors.New("No such device or address")
)
