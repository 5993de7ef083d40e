package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// unsupportedDtypeError is returned when an element type has no wire tag.
type unsupportedDtypeError struct{ dtype string }

func (e unsupportedDtypeError) Error() string {
	names := make([]string, len(SupportedDTypes))
	for i, d := range SupportedDTypes {
		names[i] = string(d)
	}
	return fmt.Sprintf("unsupported dtype %q, available types: %s", e.dtype, strings.Join(names, ", "))
}

// ErrUnsupportedDtype constructs the error reported for an unknown element type.
func ErrUnsupportedDtype(dtype string) error { return unsupportedDtypeError{dtype: dtype} }

// IsUnsupportedDtype reports whether err (or anything it wraps) is an unsupported dtype error.
func IsUnsupportedDtype(err error) bool {
	var e unsupportedDtypeError
	return errors.As(err, &e)
}

// shapeError reports a shape that cannot be encoded, or a byte length that
// does not match the declared shape.
type shapeError struct{ msg string }

func (e shapeError) Error() string { return "invalid tensor shape: " + e.msg }

// IsShapeError reports whether err is a shape/length mismatch.
func IsShapeError(err error) bool {
	var e shapeError
	return errors.As(err, &e)
}
