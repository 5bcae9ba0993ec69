// Package server implements a minimal standalone TFTP server, used as a
// test fixture peer for the client in this module.
package server

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"time"

	"github.com/Joe-Degs/dit"
	"github.com/Joe-Degs/dit/internal/logx"
	"github.com/Joe-Degs/dit/internal/transport"
)

type server struct {
	listener *net.UDPConn
	opts     *Opts
	log      *logx.Logger
}

// newServer binds the well-known listening socket described by opts.
func newServer(opts *Opts, log *logx.Logger) (*server, error) {
	listener, err := transport.ListenFixed(opts.Address)
	if err != nil {
		return nil, err
	}
	return &server{listener: listener, opts: opts, log: log}, nil
}

// start accepts RRQ/WRQ datagrams on the well-known socket, handing each
// off to its own ephemeral-port connection.
func (s *server) start() error {
	buf := make([]byte, 65507)
	for {
		n, addr, err := s.listener.ReadFromUDPAddrPort(buf)
		if err != nil {
			return err
		}

		req, err := dit.Decode(dit.ModeOctet, buf[:n])
		if err != nil {
			s.log.Warn("[%s] bad request: %v", addr, err)
			continue
		}
		if req.Op != dit.Rrq && req.Op != dit.Wrq {
			s.log.Warn("[%s] unexpected opcode on listener: %s", addr, req.Op)
			continue
		}

		go s.handle(addr, req)
	}
}

func (s *server) handle(remote netip.AddrPort, req dit.Packet) {
	conn, err := transport.BindLocal("0.0.0.0")
	if err != nil {
		s.log.Error("[%s] could not bind transfer socket: %v", remote, err)
		return
	}

	sc := newsrvconn(conn, remote, s.opts.Secure, s.log, *s.opts)
	sc.opts.Mode = req.Mode
	if len(req.Opts) > 0 {
		sc.opts = dit.TransferOptionsFromMap(req.Opts)
		sc.opts.Mode = req.Mode
	}

	if err := sc.init(req); err != nil {
		s.log.Error("[%s] init failed: %v", remote, err)
		sc.end()
		return
	}
	defer sc.end()

	s.log.Info("[%s] %s %s", remote, req.Op, req.Filename)

	switch req.Op {
	case dit.Rrq:
		s.serveRead(sc, req)
	case dit.Wrq:
		s.serveWrite(sc, req)
	}
}

const maxRetries = 5

// serveRead plays the PUT side of the protocol: the server is the data
// source and the client acknowledges each block.
func (s *server) serveRead(sc *srvconn, req dit.Packet) {
	block := uint16(1)
	if len(req.Opts) > 0 {
		if err := sc.send(dit.OptionAcknowledgment(sc.opts.ToOptions())); err != nil {
			s.log.Error("[%s] oack send: %v", sc.remote, err)
			return
		}
	}

	recvBuf := make([]byte, 4+sc.opts.BlockSize)
	for {
		n, err := sc.buf.ReadNext(make([]byte, sc.opts.BlockSize))
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.log.Error("[%s] file read: %v", sc.remote, err)
			return
		}
		payload := make([]byte, n)
		sc.buf.ReadBuffer(payload)

		if !s.sendAndWaitAck(sc, block, payload, recvBuf) {
			return
		}
		if n < sc.opts.BlockSize {
			return
		}
		block = advanceBlock(block, sc.opts.Rollover)
	}
}

// sendAndWaitAck sends a DATA packet and blocks for the matching ACK,
// sending the same block at most maxRetries times in all. A receive
// timeout, a packet from another TID, an undecodable packet or any packet
// other than the matching ACK or an ERROR each use up one attempt.
func (s *server) sendAndWaitAck(sc *srvconn, block uint16, payload []byte, recvBuf []byte) bool {
	for i := 0; i < maxRetries; i++ {
		if err := sc.send(dit.DataPacket(block, payload)); err != nil {
			s.log.Error("[%s] data send: %v", sc.remote, err)
			return false
		}

		sc.conn.SetReadDeadline(time.Now().Add(time.Duration(sc.opts.ResendTimeoutMS) * time.Millisecond))
		n, addr, err := sc.conn.ReadFromUDPAddrPort(recvBuf)
		if err != nil {
			s.log.Debug("[%s] ack wait timeout, retry %d", sc.remote, i+1)
			continue
		}
		if addr != sc.remote {
			s.log.Warn("[%s] packet from unexpected TID %s", sc.remote, addr)
			continue
		}
		p, err := dit.Decode(sc.opts.Mode, recvBuf[:n])
		if err != nil {
			continue
		}
		if p.Op == dit.Ack && p.Block == block {
			return true
		}
		if p.Op == dit.Error {
			s.log.Warn("[%s] client aborted: %s", sc.remote, p.Msg)
			return false
		}
	}
	s.log.Warn("[%s] giving up after %d retries", sc.remote, maxRetries)
	return false
}

// serveWrite plays the GET side of the protocol: the server is the data
// sink and acknowledges each block the client sends.
func (s *server) serveWrite(sc *srvconn, req dit.Packet) {
	block := uint16(0)
	if len(req.Opts) > 0 {
		if err := sc.send(dit.OptionAcknowledgment(sc.opts.ToOptions())); err != nil {
			s.log.Error("[%s] oack send: %v", sc.remote, err)
			return
		}
	} else {
		if err := sc.send(dit.Acknowledgment(block)); err != nil {
			s.log.Error("[%s] ack send: %v", sc.remote, err)
			return
		}
	}

	buf := make([]byte, 4+sc.opts.BlockSize)
	expect := advanceBlock(block, sc.opts.Rollover)
	for {
		sc.conn.SetReadDeadline(time.Now().Add(time.Duration(sc.opts.ReceiveTimeoutMS) * time.Millisecond))
		n, addr, err := sc.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			s.log.Warn("[%s] receive timeout", sc.remote)
			return
		}
		if addr != sc.remote {
			s.log.Warn("[%s] packet from unexpected TID %s", sc.remote, addr)
			continue
		}
		p, err := dit.Decode(sc.opts.Mode, buf[:n])
		if err != nil {
			s.log.Warn("[%s] decode error: %v", sc.remote, err)
			continue
		}
		if p.Op != dit.Data || p.Block != expect {
			continue
		}

		if _, err := sc.buf.WriteNext(p.Payload); err != nil {
			s.log.Error("[%s] write error: %v", sc.remote, err)
			return
		}
		if err := sc.send(dit.Acknowledgment(expect)); err != nil {
			s.log.Error("[%s] ack send: %v", sc.remote, err)
			return
		}
		if len(p.Payload) < sc.opts.BlockSize {
			return
		}
		expect = advanceBlock(expect, sc.opts.Rollover)
	}
}

// advanceBlock mirrors the client engine's rollover rule so the server's
// block arithmetic stays consistent with whatever rollover mode was
// negotiated.
func advanceBlock(block uint16, r dit.Rollover) uint16 {
	if block == 65535 && r == dit.RolloverToOne {
		return 1
	}
	return block + 1
}
