package pdfraster

import (
	"errors"
	"fmt"
)

// ErrMalformedDocument means the input could not be parsed as a PDF at all.
var ErrMalformedDocument = errors.New("pdfraster: malformed document")

// Per-image failures. They never abort an extraction; they surface as
// warnings.
var (
	ErrUnsupportedColorSpace = errors.New("unsupported color space")
	ErrUnsupportedDepth      = errors.New("unsupported bits per component")
	ErrShortData             = errors.New("insufficient image data")
	ErrBadGeometry           = errors.New("invalid image dimensions")
)

// ParseError wraps the parser failure behind ErrMalformedDocument.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pdfraster: malformed document: %v", e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrMalformedDocument, e.Err} }
