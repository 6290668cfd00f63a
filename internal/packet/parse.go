package packet

import (
	"strconv"
	"strings"
)

// Structured reports whether raw carries one of the structured prefixes.
// Frames that are not structured are delivered upward as plaintext.
func Structured(raw string) bool {
	switch {
	case strings.HasPrefix(raw, "S:"),
		strings.HasPrefix(raw, "D:"),
		strings.HasPrefix(raw, "P:"),
		strings.HasPrefix(raw, "E:"),
		strings.HasPrefix(raw, FilePrefix):
		return true
	}
	return false
}

// Parse decodes raw into one of Start, Data, Parity or End. The tail field is
// rejoined after the final reserved colon, so a ':' inside the last field
// stays with that field. FILE frames are not parsed here; callers check
// FilePrefix before calling Parse.
func Parse(raw string) (any, error) {
	if len(raw) < 2 {
		return nil, ErrNotStructured
	}
	if !Structured(raw) || strings.HasPrefix(raw, FilePrefix) {
		return nil, ErrNotStructured
	}
	switch Kind(raw[0]) {
	case KindStart:
		return parseStart(raw)
	case KindData:
		return parseData(raw)
	case KindParity:
		return parseParity(raw)
	case KindEnd:
		return parseEnd(raw)
	}
	return nil, ErrNotStructured
}

func parseStart(raw string) (Start, error) {
	parts := strings.SplitN(raw, ":", 6)
	if len(parts) < 5 {
		return Start{}, ErrTruncated
	}
	sid := parts[1]
	if sid == "" {
		return Start{}, ErrMissingSession
	}
	hash := parts[3]
	if len(hash) != 24 {
		return Start{}, ErrInvalidHash
	}
	total, ok := parseTotal(parts[4])
	if !ok {
		return Start{}, ErrInvalidTotal
	}
	p := Start{SID: sid, Hash: hash, Total: total}
	if len(parts) == 6 {
		for _, tok := range strings.Split(parts[5], ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				p.Flags = append(p.Flags, tok)
			}
		}
	}
	return p, nil
}

func parseData(raw string) (Data, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) != 4 {
		return Data{}, ErrTruncated
	}
	sid := parts[1]
	if sid == "" {
		return Data{}, ErrMissingSession
	}
	seq, err := strconv.Atoi(parts[2])
	if err != nil || seq < 1 || seq > MaxSeq {
		return Data{}, ErrInvalidSeq
	}
	return Data{SID: sid, Seq: seq, Payload: parts[3]}, nil
}

func parseParity(raw string) (Parity, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) != 4 {
		return Parity{}, ErrTruncated
	}
	sid := parts[1]
	if sid == "" {
		return Parity{}, ErrMissingSession
	}
	if parts[2] == "" {
		return Parity{}, ErrInvalidParity
	}
	return Parity{SID: sid, ParityID: parts[2], Payload: parts[3]}, nil
}

func parseEnd(raw string) (End, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return End{}, ErrMissingSession
	}
	return End{SID: parts[1]}, nil
}
