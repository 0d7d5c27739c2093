package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a compare-and-swap update matched no row
	ErrConflict = errors.New("conflict")

	// ErrAmbulanceUnavailable is returned when a claim finds the ambulance busy
	ErrAmbulanceUnavailable = fmt.Errorf("%w: ambulance is not available", ErrConflict)

	// ErrAlreadyClaimed is returned when another ambulance won the request
	ErrAlreadyClaimed = fmt.Errorf("%w: request is no longer pending", ErrConflict)

	// ErrStaleStatus is returned when the request moved on before the update
	ErrStaleStatus = fmt.Errorf("%w: request status changed", ErrConflict)

	// ErrNoBedAvailable is returned when no free slot of the requested type exists
	ErrNoBedAvailable = fmt.Errorf("%w: no bed available", ErrConflict)

	// ErrBedNotOccupied is returned when releasing a slot that is already free
	ErrBedNotOccupied = fmt.Errorf("%w: bed is not occupied", ErrConflict)
)
