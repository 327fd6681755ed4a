// Package ocidigest implements the Digest component: parsing and
// formatting of content identifiers of the form "<algorithm>:<hex>".
//
// The package wraps github.com/opencontainers/go-digest rather than
// reimplementing hashing, but enforces the narrower algorithm set and
// error behavior this project's stores depend on.
package ocidigest

import (
	"fmt"
	"strings"

	godigest "github.com/opencontainers/go-digest"
)

// Digest is a validated content identifier: an algorithm and its
// lowercase hex-encoded value.
type Digest = godigest.Digest

// Algorithm is the hash algorithm of a Digest.
type Algorithm = godigest.Algorithm

// SHA256 is the only algorithm this project accepts.
const SHA256 = godigest.SHA256

// Parse validates s as "<algorithm>:<hex>" and returns the Digest.
// Only sha256 is accepted; the hex part must be exactly 64 lowercase
// hex characters.
func Parse(s string) (Digest, error) {
	algo, hex, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("invalid digest %q: missing algorithm separator", s)
	}
	if algo != SHA256.String() {
		return "", fmt.Errorf("invalid digest %q: unsupported algorithm %q", s, algo)
	}
	if len(hex) != 64 {
		return "", fmt.Errorf("invalid digest %q: expected 64 hex characters, got %d", s, len(hex))
	}
	for _, c := range hex {
		if !isLowerHex(c) {
			return "", fmt.Errorf("invalid digest %q: non-hex character %q", s, c)
		}
	}
	d := Digest(s)
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("invalid digest %q: %w", s, err)
	}
	return d, nil
}

func isLowerHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}

// Format returns the canonical "<algorithm>:<hex>" string form.
func Format(d Digest) string {
	return d.String()
}

// Short returns the leading 12 hex characters of d's encoded value,
// the conventional length for human-facing output.
func Short(d Digest) string {
	encoded := d.Encoded()
	if len(encoded) > 12 {
		return encoded[:12]
	}
	return encoded
}

// FromBytes computes the sha256 Digest of b.
func FromBytes(b []byte) Digest {
	return godigest.FromBytes(b)
}
