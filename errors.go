package dit

import (
	"errors"
	"fmt"
)

// ErrUnexpectedTID is a sentinel for a packet arriving from an unexpected
// TID. Nothing in this package returns or wraps it: the engine answers such
// packets with an ERROR and keeps going, and a remote Error packet ends a
// transfer with a plain TransferError of kind Other.
var ErrUnexpectedTID = errors.New("dit: packet from unexpected TID (host)")

// Kind classifies why a transfer ended in failure, mirroring spec.md's
// error-kind taxonomy (§7).
type Kind int

const (
	// KindInvalidInput marks malformed inbound bytes: unknown opcode,
	// unknown mode, bad netascii, bad UTF-8, unknown error code.
	KindInvalidInput Kind = iota
	// KindConnectionAborted marks a receive-timeout expiry.
	KindConnectionAborted
	// KindOther marks a remote Error packet; Detail carries its message.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindConnectionAborted:
		return "connection aborted"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// TransferError is returned by Get/Put when the transfer fails for a
// protocol-level reason rather than a sink/source error, which is instead
// returned verbatim.
type TransferError struct {
	Kind   Kind
	Detail string
}

func (e *TransferError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("dit: %s", e.Kind)
	}
	return fmt.Sprintf("dit: %s: %s", e.Kind, e.Detail)
}

func connectionAborted() error {
	return &TransferError{Kind: KindConnectionAborted, Detail: "Connection timeout"}
}

func remoteError(p Packet) error {
	return &TransferError{Kind: KindOther, Detail: p.Msg}
}
