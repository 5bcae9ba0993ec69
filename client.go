package dit

import (
	"io"

	"github.com/Joe-Degs/dit/internal/logx"
	"github.com/Joe-Degs/dit/internal/transport"
)

// maxDatagramOverhead covers the largest packet header dit ever sends
// (DATA's opcode + block number), so reader buffers are sized
// opts.BlockSize plus this rather than a fixed guess.
const maxDatagramOverhead = 4

// session owns the socket pair and the decode/encode goroutines that sit
// between it and the engine's Packet-level channels.
type session struct {
	pair     *transport.Pair
	inbound  chan Envelope
	outbound chan Envelope
}

func dial(ip string, mode Mode, blockSize int, log *logx.Logger) (*session, error) {
	conn, err := transport.BindLocal(ip)
	if err != nil {
		return nil, err
	}
	pair := transport.NewPair(conn, blockSize+maxDatagramOverhead, log)

	s := &session{
		pair:     pair,
		inbound:  make(chan Envelope, 16),
		outbound: make(chan Envelope, 16),
	}

	go func() {
		defer close(s.inbound)
		for dg := range pair.Inbound {
			p, err := Decode(mode, dg.Data)
			if err != nil {
				log.Warn("[%s] decode failed, dropping datagram: %v", dg.Addr, err)
				continue
			}
			log.Info("[%s] received %s", dg.Addr, p.Op)
			s.inbound <- Envelope{Addr: dg.Addr, Packet: p}
		}
	}()

	go func() {
		for env := range s.outbound {
			b, err := Encode(mode, env.Packet)
			if err != nil {
				log.Error("[%s] encoding %s failed: %v", env.Addr, env.Packet.Op, err)
				continue
			}
			log.Info("[%s] sending %s", env.Addr, env.Packet.Op)
			pair.Outbound <- transport.Datagram{Addr: env.Addr, Data: b}
		}
	}()

	return s, nil
}

// close stops the outbound-forwarding goroutine and tears down the socket,
// which in turn stops the inbound-forwarding goroutine.
func (s *session) close() error {
	close(s.outbound)
	return s.pair.Close()
}

// Get fetches path from remote into w, using opts as given to build the
// initial RRQ; fields the caller left zero are used as zero and are not
// filled in from DefaultTransferOptions.
// The local socket binds an ephemeral port and is torn down before Get
// returns, win or lose.
func Get(remoteAddr string, path string, opts TransferOptions, w io.Writer, log *logx.Logger) error {
	if log == nil {
		log = logx.Default("dit", logx.LevelWarn)
	}

	remote, err := transport.ResolveAddrPort(remoteAddr)
	if err != nil {
		return err
	}

	sess, err := dial("0.0.0.0", opts.Mode, opts.BlockSize, log)
	if err != nil {
		return err
	}
	defer sess.close()

	s := &loopState{
		remote:   remote,
		inbound:  sess.inbound,
		outbound: sess.outbound,
		opts:     opts,
		sink:     w,
		log:      log,
	}
	return runGet(s, path)
}

// Put sends path to remote, reading its contents from r, mirroring Get's
// socket lifecycle.
func Put(remoteAddr string, path string, opts TransferOptions, r io.Reader, log *logx.Logger) error {
	if log == nil {
		log = logx.Default("dit", logx.LevelWarn)
	}

	remote, err := transport.ResolveAddrPort(remoteAddr)
	if err != nil {
		return err
	}

	sess, err := dial("0.0.0.0", opts.Mode, opts.BlockSize, log)
	if err != nil {
		return err
	}
	defer sess.close()

	s := &loopState{
		remote:   remote,
		inbound:  sess.inbound,
		outbound: sess.outbound,
		opts:     opts,
		source:   r,
		log:      log,
	}
	return runPut(s, path)
}
