// Package fec owns forward-error-correction for framed sessions.
//
// Ownership boundary:
// - scheme registry and wire tokens
// - deterministic group plan enumeration
// - parity generation over zero-padded chunks
// - loss recovery solver
//
// The weighted parity algebra is not a proper GF(256) erasure code: secondary
// and tertiary symbols mix integer multiplication with XOR accumulation, and
// recovery solves a real-valued linear system rounded back to bytes. That
// arithmetic is the wire contract and is reproduced exactly.
package fec

import (
	"errors"
	"fmt"
)

// ChunkSize is the padded symbol width in bytes.
const ChunkSize = 75

var ErrUnknownScheme = errors.New("fec: unknown scheme token")

// Scheme is an immutable FEC descriptor. Name is the wire token carried in
// the START F-flag.
type Scheme struct {
	Name        string
	GroupSize   int
	ParityCount int
	Overlap     bool
}

var (
	None               = Scheme{Name: "NONE"}
	Basic2             = Scheme{Name: "BASIC_2", GroupSize: 2, ParityCount: 1}
	Basic4             = Scheme{Name: "BASIC_4", GroupSize: 4, ParityCount: 1}
	Overlapping3       = Scheme{Name: "OVERLAPPING_3", GroupSize: 3, ParityCount: 1, Overlap: true}
	StrongOverlapping3 = Scheme{Name: "STRONG_OVERLAPPING_3", GroupSize: 3, ParityCount: 3, Overlap: true}
)

// DefaultScheme is assumed when a START carries no recognisable F-flag.
var DefaultScheme = StrongOverlapping3

var registry = map[string]Scheme{
	None.Name:               None,
	Basic2.Name:             Basic2,
	Basic4.Name:             Basic4,
	Overlapping3.Name:       Overlapping3,
	StrongOverlapping3.Name: StrongOverlapping3,
}

// Resolve maps a wire token to its scheme.
func Resolve(token string) (Scheme, error) {
	s, ok := registry[token]
	if !ok {
		return Scheme{}, fmt.Errorf("%w: %q", ErrUnknownScheme, token)
	}
	return s, nil
}

// ResolveOrDefault maps a wire token to its scheme, falling back to
// DefaultScheme for unknown tokens.
func ResolveOrDefault(token string) Scheme {
	if s, err := Resolve(token); err == nil {
		return s
	}
	return DefaultScheme
}

// Enabled reports whether the scheme produces any parity at all.
func (s Scheme) Enabled() bool {
	return s.GroupSize > 0 && s.ParityCount > 0
}

// Flag renders the START flag token for the scheme, empty for NONE.
func (s Scheme) Flag() string {
	if !s.Enabled() {
		return ""
	}
	return "F" + s.Name
}
