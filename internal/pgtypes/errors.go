package pgtypes

import "errors"

var (
	// ErrUnknownType is returned when a type id is absent from the catalog.
	ErrUnknownType = errors.New("type not present in catalog")
	// ErrTypeResolutionTooDeep signals cyclic or malformed catalog data.
	ErrTypeResolutionTooDeep = errors.New("type resolution went too deep")
	// ErrDuplicateRegistration is returned when a slot already holds a registration.
	ErrDuplicateRegistration = errors.New("already registered")
	// ErrTypeMismatch is returned when a value does not have the shape its type requires.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrFrozen is returned by registrations and uncached lookups after Freeze.
	ErrFrozen = errors.New("type registry is frozen")
)
