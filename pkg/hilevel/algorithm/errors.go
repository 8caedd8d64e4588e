package algorithm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAlgorithm is matched by every *UnknownAlgorithmError.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
	// ErrInvalidArgument is matched by every *InvalidArgumentError.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPortType is matched by every *PortTypeError.
	ErrPortType = errors.New("port type mismatch")
	// ErrUnknownPort is returned when looking up an undeclared port.
	ErrUnknownPort = errors.New("unknown port")
	// ErrUnboundPort is returned by Compute when a declared port was never set.
	ErrUnboundPort = errors.New("port not bound")
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("algorithm registry is frozen")
	// ErrRegistryClosed is returned by Create and Shutdown after Shutdown.
	ErrRegistryClosed = errors.New("algorithm registry is shut down")
)

// UnknownAlgorithmError reports a Create for a name nobody registered.
type UnknownAlgorithmError struct {
	Name string
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("unknown algorithm %q", e.Name)
}

func (e *UnknownAlgorithmError) Unwrap() error { return ErrUnknownAlgorithm }

// InvalidArgumentError reports a missing or malformed construction
// parameter. Cause, when set, is the underlying failure (for example the
// os error for a model file that does not exist).
type InvalidArgumentError struct {
	Algorithm string
	Param     string
	Reason    string
	Cause     error
}

func (e *InvalidArgumentError) Error() string {
	msg := fmt.Sprintf("%s: invalid parameter %q: %s", e.Algorithm, e.Param, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *InvalidArgumentError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvalidArgument}
	}
	return []error{ErrInvalidArgument, e.Cause}
}

// PortTypeError reports a port bound to a value of the wrong Go type.
type PortTypeError struct {
	Port      string
	Direction Direction
	Want      Type
	Got       string
}

func (e *PortTypeError) Error() string {
	return fmt.Sprintf("%s port %q: want %s, got %s", e.Direction, e.Port, e.Want.GoType(e.Direction), e.Got)
}

func (e *PortTypeError) Unwrap() error { return ErrPortType }
