// CLAUDE:SUMMARY Input safety guards: file paths confined to a root, remote engine URLs checked against SSRF, bounded reads, identifier validation.
// Package horosafe holds the input guards shared by docsight's transports:
// MCP file paths, remote engine URLs, response bodies and engine names.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrSSRF is returned when a URL targets a private/loopback address.
var ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")

// ErrTooLarge is returned by LimitedReadAll when the reader holds more than the cap.
var ErrTooLarge = errors.New("horosafe: body too large")

// SafePath joins userInput under base and returns the absolute result.
// Absolute inputs are re-rooted under base; anything resolving outside
// base fails with ErrPathTraversal.
func SafePath(base, userInput string) (string, error) {
	root, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("horosafe: base: %w", err)
	}
	if strings.ContainsRune(userInput, 0) {
		return "", ErrPathTraversal
	}
	joined := filepath.Join(root, filepath.FromSlash(userInput))
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// CheckScheme accepts only http and https URLs with a host.
func CheckScheme(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return nil, errors.New("horosafe: URL has no host")
	}
	return u, nil
}

// ValidateURL checks the scheme and rejects hosts that are, or resolve to,
// private or loopback addresses. Unresolvable hosts pass; the connection
// attempt will fail on its own.
func ValidateURL(rawURL string) error {
	u, err := CheckScheme(rawURL)
	if err != nil {
		return err
	}
	host := u.Hostname()
	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivate(addr) {
			return ErrSSRF
		}
		return nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && isPrivate(addr) {
			return ErrSSRF
		}
	}
	return nil
}

// ValidateIdentifier accepts 1 to 64 characters from [A-Za-z0-9_.-].
// Engine names go into URL paths and metric labels.
func ValidateIdentifier(s string) error {
	if s == "" {
		return errors.New("horosafe: identifier must not be empty")
	}
	if len(s) > 64 {
		return errors.New("horosafe: identifier too long (max 64)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}

var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("fc00::/7"),
}

func isPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsUnspecified() {
		return true
	}
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
