package index

import "errors"

// ErrVectorLengthMismatch indicates two vectors have different dimensions.
var ErrVectorLengthMismatch = errors.New("vector length mismatch")

// ErrDimensionChanged indicates the encoder returned vectors of varying size.
var ErrDimensionChanged = errors.New("embedding dim changed mid-run")
