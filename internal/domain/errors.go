package domain

import "errors"

var (
	// ErrTransportFault ends a session after the device connection failed.
	ErrTransportFault = errors.New("telemflow: transport fault")
	// ErrPersistence ends a session after the record log could not be written.
	ErrPersistence = errors.New("telemflow: persistence error")
	// ErrConfiguration prevents a session from starting.
	ErrConfiguration = errors.New("telemflow: configuration error")
	// ErrStopTimeout is returned when acquisition did not stop within the bound.
	ErrStopTimeout = errors.New("telemflow: stop timed out")
)
