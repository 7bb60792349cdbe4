package condition

import "errors"

var (
	// ErrSyntax is returned for expressions that do not parse.
	ErrSyntax = errors.New("condition: syntax error")

	// ErrUnknownField is returned when a path is absent from the snapshot.
	ErrUnknownField = errors.New("condition: unknown field")

	// ErrType is returned when operands cannot be compared.
	ErrType = errors.New("condition: type mismatch")
)
