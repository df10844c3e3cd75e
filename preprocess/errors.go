package preprocess

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrDecodeFailed = errors.New("preprocess: decode failed")
	ErrStepFailed   = errors.New("preprocess: step failed")
)

// Kind classifies a preprocessing failure.
type Kind int

const (
	DecodeFailure Kind = iota + 1
	StepFailure
)

func (k Kind) String() string {
	switch k {
	case DecodeFailure:
		return "decode"
	case StepFailure:
		return "step"
	default:
		return "unknown"
	}
}

// Error aborts a Process call. Step is empty for decode failures.
type Error struct {
	Kind Kind
	Step string
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == StepFailure {
		return fmt.Sprintf("preprocess: step %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("preprocess: decode: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match the sentinel for the error's Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrDecodeFailed:
		return e.Kind == DecodeFailure
	case ErrStepFailed:
		return e.Kind == StepFailure
	}
	return false
}
