// Package transport binds the UDP endpoint a transfer runs over and
// exposes it to the engine as a pair of datagram-level channels, keeping
// the engine itself free of any direct socket access. It knows nothing of
// TFTP packet structure; encoding and decoding happen on either side of the
// channels it returns.
package transport

import (
	"math/rand"
	"net"
	"net/netip"

	"golang.org/x/sync/errgroup"

	"github.com/Joe-Degs/dit/internal/logx"
)

const (
	ephemeralLo = 49152
	ephemeralHi = 65535
	bindTries   = 16
)

// randomEphemeralPort picks a port uniformly from [49152, 65535].
func randomEphemeralPort() int {
	return ephemeralLo + rand.Intn(ephemeralHi-ephemeralLo+1)
}

// BindLocal binds a UDP socket on ip at a random ephemeral port, retrying
// on collision.
func BindLocal(ip string) (*net.UDPConn, error) {
	var lastErr error
	for i := 0; i < bindTries; i++ {
		addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: randomEphemeralPort()}
		conn, err := listenUDP(addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Datagram pairs a raw UDP payload with the peer address it came from or is
// bound for.
type Datagram struct {
	Addr netip.AddrPort
	Data []byte
}

// Pair bundles the reader and writer satellite goroutines for one
// transfer's socket, along with the channels the engine consumes.
type Pair struct {
	Inbound  <-chan Datagram
	Outbound chan<- Datagram

	conn     *net.UDPConn
	grp      *errgroup.Group
	outbound chan Datagram
}

// NewPair spawns the reader and writer goroutines over conn and returns the
// channel pair the caller drives. maxPacketBytes bounds the reader's
// receive buffer.
func NewPair(conn *net.UDPConn, maxPacketBytes int, log *logx.Logger) *Pair {
	grp := &errgroup.Group{}
	inbound := make(chan Datagram, 16)
	outbound := make(chan Datagram, 16)

	grp.Go(func() error {
		runReader(conn, maxPacketBytes, inbound, log)
		return nil
	})
	grp.Go(func() error {
		runWriter(conn, outbound, log)
		return nil
	})

	return &Pair{Inbound: inbound, Outbound: outbound, conn: conn, grp: grp, outbound: outbound}
}

// Close shuts down the socket, which unblocks the reader goroutine, closes
// the outbound channel to let the writer drain and exit, then waits for
// both satellites to finish. The caller must stop sending on Outbound
// before calling Close.
func (p *Pair) Close() error {
	err := p.conn.Close()
	close(p.outbound)
	p.grp.Wait()
	return err
}

// runReader blocks on socket receive and forwards each datagram on out
// until the socket is closed.
func runReader(conn *net.UDPConn, maxPacketBytes int, out chan<- Datagram, log *logx.Logger) {
	defer close(out)
	buf := make([]byte, maxPacketBytes)
	for {
		n, addr, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			log.Debug("reader: socket closed: %v", err)
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		log.Debug("[%s] got %d bytes", addr, n)
		out <- Datagram{Addr: addr, Data: cp}
	}
}

// runWriter drains datagrams from in and sends each via the socket, exiting
// when in is closed.
func runWriter(conn *net.UDPConn, in <-chan Datagram, log *logx.Logger) {
	for dg := range in {
		if _, err := conn.WriteToUDPAddrPort(dg.Data, dg.Addr); err != nil {
			log.Warn("[%s] send failed: %v", dg.Addr, err)
		}
	}
}

// ListenFixed binds a UDP socket at the given fixed address (e.g. ":69"),
// applying the same platform socket tuning as BindLocal. Used by the
// reference server, which must bind a well-known port rather than an
// ephemeral one.
func ListenFixed(address string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	return listenUDP(addr)
}

// ResolveAddrPort resolves a "host:port" string to a netip.AddrPort over
// UDP, the form the engine keeps its bound peer in.
func ResolveAddrPort(address string) (netip.AddrPort, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return netip.AddrPort{}, err
	}
	ap := addr.AddrPort()
	if ap.Addr().Is4In6() {
		ap = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return ap, nil
}
