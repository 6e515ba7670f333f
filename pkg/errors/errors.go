package errors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyKey     = errors.New("empty key")
	ErrInvalidData  = errors.New("invalid data type")
	ErrEntityExists = errors.New("entity already exists")

	// ErrNoResults is returned when aggregation is attempted over an empty
	// set of eligible client results. The orchestrator treats it as fatal.
	ErrNoResults = errors.New("no eligible results to aggregate")

	// ErrIncompatibleParameters is returned when parameter sets with
	// mismatched array counts or shapes reach an aggregation. Always a bug
	// in a client's trainer or in configuration, never recovered.
	ErrIncompatibleParameters = errors.New("incompatible parameter sets")

	ErrDuplicateClient = errors.New("client already registered")
	ErrUnknownClient   = errors.New("unknown client")

	ErrInvalidWeight = errors.New("aggregation weight must be positive and finite")
)
