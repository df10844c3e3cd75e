package horosafe

import (
	"errors"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	// WHAT: Paths stay under the root; escapes are rejected.
	// WHY: MCP callers name files on the server's disk.
	base := t.TempDir()
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"scans/page1.png", filepath.Join(base, "scans", "page1.png"), false},
		{"scans/../doc.pdf", filepath.Join(base, "doc.pdf"), false},
		{"/etc/passwd", filepath.Join(base, "etc", "passwd"), false},
		{"../etc/passwd", "", true},
		{"a/../../outside", "", true},
		{"nul\x00byte", "", true},
	}
	for _, tt := range tests {
		got, err := SafePath(base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q) error=%v, wantErr=%v", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrPathTraversal) {
			t.Errorf("SafePath(%q) error=%v, want ErrPathTraversal", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("SafePath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSafePath_RelativeBase(t *testing.T) {
	// WHAT: A relative root such as "." is made absolute first.
	got, err := SafePath(".", "x.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(got) || filepath.Base(got) != "x.pdf" {
		t.Fatalf("got %q", got)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"ftp://evil.com/data", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"http://127.0.0.1/admin", ErrSSRF},
		{"http://10.0.0.1/internal", ErrSSRF},
		{"http://192.168.1.1/api", ErrSSRF},
		{"http://[::1]/api", ErrSSRF},
		{"http://172.16.0.1/secret", ErrSSRF},
		{"http://[::ffff:127.0.0.1]/x", ErrSSRF},
		{"http://8.8.8.8/ocr", nil},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
			t.Errorf("ValidateURL(%q) error=%v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestCheckScheme(t *testing.T) {
	if _, err := CheckScheme("http://localhost:8080/ocr"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := CheckScheme("http:///nohost"); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("tesseract-v5_remote.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "../etc", "has spaces", "a/b", strings.Repeat("a", 65)} {
		if err := ValidateIdentifier(bad); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error", bad)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data := strings.Repeat("x", 100)
	got, err := LimitedReadAll(strings.NewReader(data), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}
	if _, err := LimitedReadAll(strings.NewReader(data), 50); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestIsPrivate(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.1", true},
		{"172.16.0.1", true},
		{"192.168.0.1", true},
		{"169.254.1.1", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"::1", true},
		{"fd00::1", true},
	}
	for _, tt := range tests {
		if got := isPrivate(netip.MustParseAddr(tt.ip)); got != tt.private {
			t.Errorf("isPrivate(%s) = %v, want %v", tt.ip, got, tt.private)
		}
	}
}
