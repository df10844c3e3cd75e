//go:build !ocr

package tesseract

import (
	"errors"
	"testing"

	"github.com/hazyhaar/docsight/recognize"
)

func TestNew_NotEnabled(t *testing.T) {
	// WHAT: Without the ocr tag, New reports ErrNotEnabled.
	// WHY: The server skips the engine instead of failing to start.
	e, err := New(Config{})
	if !errors.Is(err, recognize.ErrNotEnabled) || e != nil {
		t.Fatalf("New = %v, %v; want nil, ErrNotEnabled", e, err)
	}
	stub := &Engine{}
	if stub.Name() != Name {
		t.Errorf("name = %q", stub.Name())
	}
}

func TestClose_Stub(t *testing.T) {
	// WHAT: Close on the stub, including a nil one, returns nil.
	// WHY: Shutdown closes whatever engine New produced without checking the tag.
	var nilEngine *Engine
	if err := nilEngine.Close(); err != nil {
		t.Errorf("nil Close = %v", err)
	}
	if err := (&Engine{}).Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
