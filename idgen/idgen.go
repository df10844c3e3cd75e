// CLAUDE:SUMMARY Run ID generation: time-ordered UUIDv7 in production, counters in tests.
// Package idgen mints the run IDs docpipe attaches to every result and
// observability stores in ocr_runs.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a new unique ID on each call. Implementations must be
// safe for concurrent use.
type Generator func() string

// UUIDv7 mints RFC 9562 version 7 UUIDs. They sort by creation time, so
// ocr_runs inserts stay append-only.
func UUIDv7() Generator {
	return func() string { return uuid.Must(uuid.NewV7()).String() }
}

// Sequence mints prefix1, prefix2, ... Useful where tests need stable IDs.
func Sequence(prefix string) Generator {
	var n atomic.Uint64
	return func() string { return prefix + strconv.FormatUint(n.Add(1), 10) }
}

// Default is the generator used when none is configured.
var Default = UUIDv7()

// Parse checks that s is a UUID and returns its canonical lower-case form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: %q is not a UUID: %w", s, err)
	}
	return u.String(), nil
}
