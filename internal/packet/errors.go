package packet

import "errors"

var (
	ErrNotStructured  = errors.New("packet: not a structured frame")
	ErrTruncated      = errors.New("packet: truncated frame")
	ErrFrameTooLong   = errors.New("packet: frame exceeds MTU")
	ErrMissingSession = errors.New("packet: missing session id")
	ErrInvalidHash    = errors.New("packet: invalid digest field")
	ErrInvalidTotal   = errors.New("packet: invalid total field")
	ErrInvalidSeq     = errors.New("packet: invalid sequence field")
	ErrInvalidParity  = errors.New("packet: invalid parity id field")
)
