package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/Joe-Degs/dit"
	"github.com/Joe-Degs/dit/internal/logx"
)

// srvconn is the per-transfer state the server keeps on its own ephemeral
// socket once a request has been accepted off the well-known port.
type srvconn struct {
	conn   *net.UDPConn
	remote netip.AddrPort
	id     int64
	dir    string
	log    *logx.Logger
	cfg    Opts
	buf    *dit.FileBuffer
	f      *os.File
	opts   dit.TransferOptions
}

func newsrvconn(conn *net.UDPConn, remote netip.AddrPort, dir string, log *logx.Logger, cfg Opts) *srvconn {
	return &srvconn{
		conn:   conn,
		remote: remote,
		cfg:    cfg,
		log:    log,
		dir:    dir,
		buf:    dit.NewFileBuffer(),
		opts:   dit.DefaultTransferOptions(),
	}
}

// writeErr sends an ERROR packet to the bound peer.
func (s *srvconn) writeErr(code dit.ErrorCode, msg string) error {
	b, err := dit.Encode(s.opts.Mode, dit.ErrorPacket(code, msg))
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDPAddrPort(b, s.remote)
	return err
}

// send encodes and sends p to the bound peer.
func (s *srvconn) send(p dit.Packet) error {
	b, err := dit.Encode(s.opts.Mode, p)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDPAddrPort(b, s.remote)
	return err
}

// init opens the requested file, translating the filesystem error (if any)
// into the ERROR packet the client expects.
func (s *srvconn) init(req dit.Packet) error {
	filename := filepath.Join(s.dir, req.Filename)

	if s.buf.Is(filename) {
		return nil
	}

	_, err := os.Stat(filename)
	if err != nil && !(req.Op == dit.Wrq && s.cfg.Create && errors.Is(err, os.ErrNotExist)) {
		s.log.Error("stat error: %+v", err)
		var serr error
		switch {
		case errors.Is(err, os.ErrNotExist) && req.Op == dit.Rrq:
			serr = s.writeErr(dit.FileNotFound, "file does not exist")
		case errors.Is(err, os.ErrNotExist) && !s.cfg.Create:
			serr = s.writeErr(dit.FileNotFound, "file does not exist")
		case errors.Is(err, os.ErrPermission):
			serr = s.writeErr(dit.AccessViolation, "permission denied")
		default:
			serr = s.writeErr(dit.Undefined, "could not stat file")
		}
		if serr != nil {
			err = fmt.Errorf("%w: failed to send error: %w", err, serr)
		}
		return err
	}

	var flags int
	switch req.Op {
	case dit.Rrq:
		flags = os.O_RDONLY
	case dit.Wrq:
		flags = os.O_WRONLY | os.O_TRUNC
		if s.cfg.Create {
			flags |= os.O_CREATE
		}
	}

	f, err := os.OpenFile(filename, flags, fs.ModePerm)
	if err != nil {
		s.log.Error("open error: %+v", err)
		if e := s.writeErr(dit.Undefined, "could not open file"); e != nil {
			return fmt.Errorf("%w: could not send error packet %w", err, e)
		}
		return err
	}

	s.f = f
	s.buf.WithRequest(req.Op, f)
	return nil
}

// end resets transfer-local state and closes the file, called once a
// transfer has finished (successfully or not).
func (s *srvconn) end() *srvconn {
	s.buf.Reset()
	s.Close()
	return s
}

func (s *srvconn) Close() (err error) {
	if s.f != nil {
		err = s.f.Close()
	}
	if err1 := s.conn.Close(); err1 != nil {
		err = err1
	}
	return
}
