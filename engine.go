package dit

import (
	"errors"
	"io"
	"net/netip"
	"time"

	"github.com/Joe-Degs/dit/internal/logx"
)

// Envelope pairs a packet with the peer address it came from or is bound
// for, the unit of exchange on both the inbound and outbound channels.
type Envelope struct {
	Addr   netip.AddrPort
	Packet Packet
}

type ctrlKind int

const (
	ctrlNormal ctrlKind = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
)

// ctrl is the value every engine callback returns to tell the loop what to
// do next: keep going, stop with success, skip to the next iteration, or
// stop with an explicit result.
type ctrl struct {
	kind ctrlKind
	err  error
}

var (
	ctrlResultNormal   = ctrl{kind: ctrlNormal}
	ctrlResultBreak    = ctrl{kind: ctrlBreak}
	ctrlResultContinue = ctrl{kind: ctrlContinue}
)

func ctrlReturnErr(err error) ctrl { return ctrl{kind: ctrlReturn, err: err} }

// loopState is the engine-local state for one transfer: everything the GET
// and PUT callbacks read and mutate across iterations of the shared event
// loop.
type loopState struct {
	remote   netip.AddrPort
	inbound  <-chan Envelope
	outbound chan<- Envelope

	opts  TransferOptions
	block uint16

	resend bool
	first  bool

	sink   io.Writer // GET only
	source io.Reader // PUT only

	buffered      []byte
	bufferedValid bool

	log *logx.Logger
}

// advanceBlock applies the monotonic-modulo-65536 rule with the rollover
// extension: 65535 wraps to 1 under RolloverToOne, otherwise the natural
// uint16 overflow to 0 stands.
func advanceBlock(block uint16, r Rollover) uint16 {
	if block == 65535 && r == RolloverToOne {
		return 1
	}
	return block + 1
}

// engine callbacks, shared shape across GET and PUT.
type (
	initFunc         func(*loopState)
	loopStartFunc    func(*loopState) ctrl
	handlePacketFunc func(s *loopState, firstPacket bool, p Packet, resetTimeout *bool) ctrl
)

// runLoop drives the three concurrent event sources (inbound channel,
// receive-timeout, resend-timeout) to completion, implementing TID
// discipline, first-packet option handling, and error-packet propagation
// once, for both the GET and PUT state machines.
func runLoop(s *loopState, resendEnabled bool, init initFunc, loopStart loopStartFunc, handlePacket handlePacketFunc) error {
	recvTimeout := time.NewTimer(time.Duration(s.opts.ReceiveTimeoutMS) * time.Millisecond)
	defer recvTimeout.Stop()

	resendTimer := time.NewTimer(time.Hour)
	resendTimer.Stop()
	defer resendTimer.Stop()

	resetTimeout := false
	s.first = true

	init(s)

	for {
		var resendC <-chan time.Time
		if resendEnabled {
			resendTimer.Reset(time.Duration(s.opts.ResendTimeoutMS) * time.Millisecond)
			resendC = resendTimer.C
		}

		if c := loopStart(s); c.kind != ctrlNormal {
			switch c.kind {
			case ctrlBreak:
				return nil
			case ctrlReturn:
				return c.err
			case ctrlContinue:
				continue
			}
		}

		if resetTimeout {
			recvTimeout.Reset(time.Duration(s.opts.ReceiveTimeoutMS) * time.Millisecond)
			resetTimeout = false
		}

		select {
		case <-recvTimeout.C:
			s.log.Warn("receive timeout waiting on %s", s.remote)
			return connectionAborted()

		case <-resendC:
			s.log.Debug("resend timeout, will retransmit")
			s.resend = true
			continue

		case env := <-s.inbound:
			if env.Addr != s.remote && !s.first {
				s.log.Warn("packet from unexpected TID: got %s, bound to %s", env.Addr, s.remote)
				s.outbound <- Envelope{Addr: env.Addr, Packet: ErrorPacket(UnknownTID, "Unknown TID")}
				continue
			}

			firstPacket := s.first
			if s.first {
				if env.Addr.Addr() != s.remote.Addr() {
					// Not from the IP we sent the request to; ignore.
					continue
				}
				s.first = false
				s.remote = env.Addr
			}

			if env.Packet.Op == Error {
				return remoteError(env.Packet)
			}

			if firstPacket && env.Packet.Op != OAck {
				s.opts = DefaultTransferOptions()
			}

			c := handlePacket(s, firstPacket, env.Packet, &resetTimeout)
			switch c.kind {
			case ctrlBreak:
				return nil
			case ctrlReturn:
				return c.err
			case ctrlContinue:
				continue
			}
		}
	}
}

// readBlock fills a buffer of size bytes from r. End of stream (whether
// signalled by io.EOF before any bytes, or io.ErrUnexpectedEOF after a
// partial read) yields a short slice and no error, matching the
// byte-source contract in spec.md §6.
func readBlock(r io.Reader, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF):
		return nil, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:n], nil
	default:
		return nil, err
	}
}

func runGet(s *loopState, path string) error {
	s.block = 1

	init := func(s *loopState) {
		s.outbound <- Envelope{Addr: s.remote, Packet: ReadRequest(path, s.opts.Mode, s.opts.ToOptions())}
	}

	loopStart := func(s *loopState) ctrl { return ctrlResultNormal }

	handlePacket := func(s *loopState, first bool, p Packet, resetTimeout *bool) ctrl {
		switch {
		case first && p.Op == OAck:
			s.opts = TransferOptionsFromMap(p.Opts)
			s.outbound <- Envelope{Addr: s.remote, Packet: Acknowledgment(0)}

		case p.Op == Data && p.Block == s.block:
			block := p.Block
			s.block = advanceBlock(s.block, s.opts.Rollover)
			*resetTimeout = true

			if _, err := s.sink.Write(p.Payload); err != nil {
				return ctrlReturnErr(err)
			}
			s.outbound <- Envelope{Addr: s.remote, Packet: Acknowledgment(block)}

			if len(p.Payload) < s.opts.BlockSize {
				return ctrlResultBreak
			}
		}
		return ctrlResultNormal
	}

	return runLoop(s, false, init, loopStart, handlePacket)
}

func runPut(s *loopState, path string) error {
	s.block = 0
	s.resend = false

	init := func(s *loopState) {
		s.outbound <- Envelope{Addr: s.remote, Packet: WriteRequest(path, s.opts.Mode, s.opts.ToOptions())}
	}

	loopStart := func(s *loopState) ctrl {
		if !s.resend {
			return ctrlResultNormal
		}
		if !s.bufferedValid {
			buf, err := readBlock(s.source, s.opts.BlockSize)
			if err != nil {
				return ctrlReturnErr(err)
			}
			s.buffered = buf
			s.bufferedValid = true
		}
		s.outbound <- Envelope{Addr: s.remote, Packet: DataPacket(s.block, s.buffered)}
		s.resend = false
		return ctrlResultNormal
	}

	handlePacket := func(s *loopState, first bool, p Packet, resetTimeout *bool) ctrl {
		switch {
		case first && p.Op == OAck:
			s.opts = TransferOptionsFromMap(p.Opts)
			s.block = advanceBlock(s.block, s.opts.Rollover)
			s.resend = true

		case p.Op == Ack && p.Block == s.block:
			if s.bufferedValid && len(s.buffered) < s.opts.BlockSize {
				return ctrlResultBreak
			}
			s.block = advanceBlock(s.block, s.opts.Rollover)
			*resetTimeout = true
			s.resend = true
			s.bufferedValid = false
		}
		return ctrlResultNormal
	}

	return runLoop(s, true, init, loopStart, handlePacket)
}
