package core

import "errors"

var (
	// ErrInvalidArgument reports a programmer error such as a non-positive
	// segment count or a negative altitude.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotTriangulated reports an index buffer whose length is not a
	// multiple of three.
	ErrNotTriangulated = errors.New("index buffer is not a triangle list")
)
