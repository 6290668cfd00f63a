// Package packet owns the framed ASCII wire contract.
//
// Ownership boundary:
// - the four packet kinds (START/DATA/PARITY/END)
// - serialisation within the 140-character frame budget
// - parsing with drop-not-abort semantics
package packet

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// MaxFrameLen is the transport MTU in ASCII characters.
const MaxFrameLen = 140

// MaxSeq bounds the 1-based chunk sequence number.
const MaxSeq = 9_999_999

// Kind identifies one of the four packet forms.
type Kind byte

const (
	KindStart  Kind = 'S'
	KindData   Kind = 'D'
	KindParity Kind = 'P'
	KindEnd    Kind = 'E'
)

// FlagCompressed marks a gzip-compressed payload.
const FlagCompressed = "C"

// FilePrefix marks a file-batch frame handled outside normal reassembly.
const FilePrefix = "FILE:"

// Start announces a session: digest, chunk count, and option flags.
type Start struct {
	SID   string
	Hash  string
	Total int
	Flags []string
}

// Data carries one base64 chunk keyed by its 1-based sequence number.
type Data struct {
	SID     string
	Seq     int
	Payload string
}

// Parity carries one base64 parity symbol keyed by its canonical parity id.
type Parity struct {
	SID      string
	ParityID string
	Payload  string
}

// End is the advisory session trailer.
type End struct {
	SID string
}

// NewSID allocates a session identifier: unix seconds and a zero-padded
// six-digit nonce, at most 15 ASCII characters.
func NewSID() string {
	return fmt.Sprintf("%d-%06d", time.Now().Unix(), rand.Intn(1_000_000))
}

// Serialise renders the START wire form. The flags field and its leading
// colon are omitted entirely when no flags are set.
func (p Start) Serialise() string {
	base := fmt.Sprintf("S:%s::%s:%d", p.SID, p.Hash, p.Total)
	if len(p.Flags) == 0 {
		return base
	}
	return base + ":" + strings.Join(p.Flags, ",")
}

// Serialise renders the DATA wire form.
func (p Data) Serialise() string {
	return fmt.Sprintf("D:%s:%d:%s", p.SID, p.Seq, p.Payload)
}

// Serialise renders the PARITY wire form.
func (p Parity) Serialise() string {
	return fmt.Sprintf("P:%s:%s:%s", p.SID, p.ParityID, p.Payload)
}

// Serialise renders the END wire form.
func (p End) Serialise() string {
	return fmt.Sprintf("E:%s::", p.SID)
}

// Compressed reports whether the C flag is present.
func (p Start) Compressed() bool {
	for _, f := range p.Flags {
		if f == FlagCompressed {
			return true
		}
	}
	return false
}

// SchemeToken extracts the first F{SCHEME} flag token, if any.
func (p Start) SchemeToken() (string, bool) {
	for _, f := range p.Flags {
		if len(f) > 1 && f[0] == 'F' && isSchemeToken(f[1:]) {
			return f[1:], true
		}
	}
	return "", false
}

func isSchemeToken(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return len(s) > 0
}

// ID returns the duplicate-suppression key for a parsed packet: the kind,
// session id and third field joined by colons.
func ID(kind Kind, sid, field3 string) string {
	return string(kind) + ":" + sid + ":" + field3
}

// ValidSeq reports whether seq is inside the contiguous 1-based window.
func ValidSeq(seq, total int) bool {
	return seq >= 1 && seq <= total && seq <= MaxSeq
}

func parseTotal(s string) (int, bool) {
	total, err := strconv.Atoi(s)
	if err != nil || total < 0 || total > MaxSeq {
		return 0, false
	}
	return total, true
}
