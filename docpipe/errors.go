package docpipe

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyInput        = errors.New("docpipe: empty input")
	ErrTooLarge          = errors.New("docpipe: input too large")
	ErrUnsupportedFormat = errors.New("docpipe: unsupported format")
	ErrInvalidOptions    = errors.New("docpipe: invalid options")
	ErrRecognition       = errors.New("docpipe: recognition failed")
)

// TooLargeError reports an input over Config.MaxFileSize.
type TooLargeError struct {
	Size int64
	Max  int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("docpipe: input of %d bytes exceeds maximum %d", e.Size, e.Max)
}

func (e *TooLargeError) Unwrap() error { return ErrTooLarge }

// DimensionsError reports an image whose declared width*height exceeds
// Config.MaxPixels. It is raised from the header, before pixels are decoded.
type DimensionsError struct {
	Width, Height int
	Max           int
}

func (e *DimensionsError) Error() string {
	return fmt.Sprintf("docpipe: image of %dx%d exceeds %d pixels", e.Width, e.Height, e.Max)
}

func (e *DimensionsError) Unwrap() error { return ErrTooLarge }
