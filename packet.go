// dit implements a client for the Trivial File Transfer Protocol as
// described in RFC1350, RFC2347, RFC2348 and RFC2349.
package dit

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Joe-Degs/dit/internal/netascii"
)

// Opcode identifies the kind of a TFTP packet on the wire.
type Opcode uint16

const (
	Rrq   Opcode = 1 // Read Request
	Wrq   Opcode = 2 // Write Request
	Data  Opcode = 3
	Ack   Opcode = 4
	Error Opcode = 5
	OAck  Opcode = 6 // RFC2347 Option Acknowledgment
)

func (op Opcode) String() string {
	switch op {
	case Rrq:
		return "RRQ"
	case Wrq:
		return "WRQ"
	case Data:
		return "DATA"
	case Ack:
		return "ACK"
	case Error:
		return "ERROR"
	case OAck:
		return "OACK"
	default:
		return fmt.Sprintf("Opcode(%d)", uint16(op))
	}
}

// Mode is the TFTP transfer mode, case-insensitive on the wire.
type Mode string

const (
	ModeNetASCII Mode = "netascii"
	ModeOctet    Mode = "octet"
)

// ParseMode canonicalizes a wire mode string to its lowercase Mode value.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case string(ModeNetASCII):
		return ModeNetASCII, nil
	case string(ModeOctet):
		return ModeOctet, nil
	default:
		return "", fmt.Errorf("dit: unknown mode %q", s)
	}
}

// ErrorCode is a TFTP error packet's numeric reason, RFC1350 appendix I plus
// the RFC2347 option-negotiation-rejected extension.
type ErrorCode uint16

const (
	Undefined                 ErrorCode = 0
	FileNotFound              ErrorCode = 1
	AccessViolation           ErrorCode = 2
	DiskFull                  ErrorCode = 3
	IllegalOperation          ErrorCode = 4
	UnknownTID                ErrorCode = 5
	FileAlreadyExists         ErrorCode = 6
	NoSuchUser                ErrorCode = 7
	OptionNegotiationRejected ErrorCode = 8
)

func errorCodeFromUint16(v uint16) (ErrorCode, error) {
	if v > uint16(OptionNegotiationRejected) {
		return 0, fmt.Errorf("dit: unknown error code %d", v)
	}
	return ErrorCode(v), nil
}

// Options is the wire-level option map: case-insensitive textual keys to
// textual values, as introduced by RFC2347.
type Options map[string]string

// Packet is a TFTP protocol packet. Only the fields relevant to Op are
// meaningful; callers switch on Op before reading them.
type Packet struct {
	Op Opcode

	// RRQ/WRQ
	Filename string
	Mode     Mode
	Opts     Options

	// DATA
	Block   uint16
	Payload []byte

	// ACK uses Block only.

	// ERROR
	Code ErrorCode
	Msg  string

	// OACK uses Opts only.
}

// ReadRequest builds an RRQ packet.
func ReadRequest(filename string, mode Mode, opts Options) Packet {
	return Packet{Op: Rrq, Filename: filename, Mode: mode, Opts: opts}
}

// WriteRequest builds a WRQ packet.
func WriteRequest(filename string, mode Mode, opts Options) Packet {
	return Packet{Op: Wrq, Filename: filename, Mode: mode, Opts: opts}
}

// DataPacket builds a DATA packet.
func DataPacket(block uint16, payload []byte) Packet {
	return Packet{Op: Data, Block: block, Payload: payload}
}

// Acknowledgment builds an ACK packet.
func Acknowledgment(block uint16) Packet {
	return Packet{Op: Ack, Block: block}
}

// ErrorPacket builds an ERROR packet.
func ErrorPacket(code ErrorCode, msg string) Packet {
	return Packet{Op: Error, Code: code, Msg: msg}
}

// OptionAcknowledgment builds an OACK packet.
func OptionAcknowledgment(opts Options) Packet {
	return Packet{Op: OAck, Opts: opts}
}

// Encode turns p into its on-wire byte representation for the given mode.
// Only DATA payloads are affected by mode (the netascii line-ending
// transform).
func Encode(mode Mode, p Packet) ([]byte, error) {
	buf := make([]byte, 2, 32)
	binary.BigEndian.PutUint16(buf, uint16(p.Op))

	switch p.Op {
	case Rrq, Wrq:
		buf = append(buf, nullTerminate(p.Filename)...)
		buf = append(buf, nullTerminate(string(p.Mode))...)
		buf = append(buf, encodeOptions(p.Opts)...)
	case Data:
		buf = appendUint16(buf, p.Block)
		if mode == ModeNetASCII {
			buf = append(buf, netascii.Encode(p.Payload)...)
		} else {
			buf = append(buf, p.Payload...)
		}
	case Ack:
		buf = appendUint16(buf, p.Block)
	case Error:
		buf = appendUint16(buf, uint16(p.Code))
		buf = append(buf, nullTerminate(p.Msg)...)
	case OAck:
		buf = append(buf, encodeOptions(p.Opts)...)
	default:
		return nil, fmt.Errorf("dit: cannot encode opcode %s", p.Op)
	}
	return buf, nil
}

// Decode parses b, a single UDP datagram payload, into a typed Packet for
// the given mode.
func Decode(mode Mode, b []byte) (Packet, error) {
	if len(b) < 2 {
		return Packet{}, fmt.Errorf("dit: packet too short to contain an opcode")
	}
	op := Opcode(binary.BigEndian.Uint16(b[0:2]))
	rest := b[2:]

	switch op {
	case Rrq, Wrq:
		filename, rest, err := readField(rest)
		if err != nil {
			return Packet{}, fmt.Errorf("dit: decode filename: %w", err)
		}
		modeStr, rest, err := readField(rest)
		if err != nil {
			return Packet{}, fmt.Errorf("dit: decode mode: %w", err)
		}
		m, err := ParseMode(modeStr)
		if err != nil {
			return Packet{}, err
		}
		opts, err := decodeOptions(rest)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Op: op, Filename: filename, Mode: m, Opts: opts}, nil

	case Data:
		if len(rest) < 2 {
			return Packet{}, fmt.Errorf("dit: truncated DATA header")
		}
		block := binary.BigEndian.Uint16(rest[0:2])
		payload := rest[2:]
		if mode == ModeNetASCII {
			decoded, err := netascii.Decode(payload)
			if err != nil {
				return Packet{}, fmt.Errorf("dit: %w", err)
			}
			payload = decoded
		} else {
			cp := make([]byte, len(payload))
			copy(cp, payload)
			payload = cp
		}
		return Packet{Op: Data, Block: block, Payload: payload}, nil

	case Ack:
		if len(rest) < 2 {
			return Packet{}, fmt.Errorf("dit: truncated ACK")
		}
		return Packet{Op: Ack, Block: binary.BigEndian.Uint16(rest[0:2])}, nil

	case Error:
		if len(rest) < 2 {
			return Packet{}, fmt.Errorf("dit: truncated ERROR header")
		}
		code, err := errorCodeFromUint16(binary.BigEndian.Uint16(rest[0:2]))
		if err != nil {
			return Packet{}, fmt.Errorf("dit: %w", err)
		}
		msg, _, err := readField(rest[2:])
		if err != nil {
			return Packet{}, fmt.Errorf("dit: decode error message: %w", err)
		}
		return Packet{Op: Error, Code: code, Msg: msg}, nil

	case OAck:
		opts, err := decodeOptions(rest)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Op: OAck, Opts: opts}, nil

	default:
		return Packet{}, fmt.Errorf("dit: opcode %d not recognized", uint16(op))
	}
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func nullTerminate(s string) []byte {
	return append([]byte(s), 0)
}

// readField reads a NUL-terminated field from b, returning the bytes before
// the terminator (as a UTF-8 string) and whatever remains after it. If b
// runs out without a terminator, the bytes accumulated so far are returned
// as a tolerant tail parse; if none were accumulated, the field is absent.
func readField(b []byte) (string, []byte, error) {
	for i, c := range b {
		if c == 0 {
			if !utf8.Valid(b[:i]) {
				return "", nil, fmt.Errorf("invalid utf8 in field: %q", b[:i])
			}
			return string(b[:i]), b[i+1:], nil
		}
	}
	if len(b) == 0 {
		return "", nil, nil
	}
	if !utf8.Valid(b) {
		return "", nil, fmt.Errorf("invalid utf8 in field: %q", b)
	}
	return string(b), nil, nil
}

func encodeOptions(opts Options) []byte {
	var buf []byte
	for k, v := range opts {
		buf = append(buf, nullTerminate(k)...)
		buf = append(buf, nullTerminate(v)...)
	}
	return buf
}

// decodeOptions reads (key, value) NUL-terminated string pairs until the
// buffer is exhausted. Keys are lowercased so lookups are case-insensitive.
func decodeOptions(b []byte) (Options, error) {
	var opts Options
	for len(b) > 0 {
		key, rest, err := readField(b)
		if err != nil {
			return nil, fmt.Errorf("dit: decode option key: %w", err)
		}
		if key == "" && rest == nil {
			break
		}
		val, rest2, err := readField(rest)
		if err != nil {
			return nil, fmt.Errorf("dit: decode option value: %w", err)
		}
		if opts == nil {
			opts = make(Options)
		}
		opts[strings.ToLower(key)] = val
		b = rest2
		if rest2 == nil {
			break
		}
	}
	return opts, nil
}
