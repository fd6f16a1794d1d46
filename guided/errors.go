// guided/errors.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import "errors"

var (
	ErrDestinationRejected    = errors.New("Destination is outside the fence")
	ErrDestinationUnreachable = errors.New("Unable to set destination")
	ErrTakeoffBelowGround     = errors.New("Takeoff altitude is below the measured ground distance")
	ErrMissingCollaborator    = errors.New("Required collaborator not provided")
	ErrInvalidAltitude        = errors.New("Altitude is not finite or out of range")
)

type NavErrorCode int

const (
	NavErrDestOutsideFence NavErrorCode = iota
	NavErrFailedToSetDestination
	NavErrFailedCircleInit
)

func (c NavErrorCode) String() string {
	return [...]string{"DestOutsideFence", "FailedToSetDestination", "FailedCircleInit"}[c]
}
