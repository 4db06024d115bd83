package capture

import "errors"

var (
	// ErrRange is returned when a sweep range does not fit the hall of fame.
	ErrRange = errors.New("sweep range out of bounds")

	// ErrSweepActive is returned by Run while another sweep is in progress.
	ErrSweepActive = errors.New("sweep already in progress")

	// ErrUnresolvedInput marks a hall-of-fame variable with no matching host input.
	ErrUnresolvedInput = errors.New("unresolved input")

	// ErrUnsupportedInputKind marks a host input whose kind cannot be set from an archive value.
	ErrUnsupportedInputKind = errors.New("unsupported input kind")
)
