package volume

import "fmt"

// InputError reports a file that could not be read or understood as a
// supported volumetric format. It wraps the underlying cause.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid input: %v", e.Err)
	}
	return fmt.Sprintf("invalid input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// DimensionalityError reports an image with an unexpected number of axes,
// for example a 5-D array that does not squeeze down to 4-D or fewer.
// Guessing which axis to drop risks corrupting downstream analysis, so this
// is fatal rather than auto-corrected.
type DimensionalityError struct {
	Path string
	NDim int
}

func (e *DimensionalityError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("unexpected image dimensionality: %d axes", e.NDim)
	}
	return fmt.Sprintf("unexpected dimensionality of %s: %d axes", e.Path, e.NDim)
}

// IOError reports a failure to persist an output image.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cannot write %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
