// Package udp sends compact snapshots as single datagrams.
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/ponytojas/dht-logger/internal/codec"
	"github.com/ponytojas/dht-logger/internal/dispatch"
	dlog "github.com/ponytojas/dht-logger/internal/logger"
)

// Socket is an unconnected UDP socket shared by every destination.
type Socket struct {
	conn   *net.UDPConn
	logger *slog.Logger
}

// Listen binds a socket to an ephemeral port on all interfaces.
func Listen(logger *slog.Logger) (*Socket, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP socket: %w", err)
	}
	return &Socket{conn: conn, logger: logger}, nil
}

// Destination returns a sender delivering to addr, given as IP:PORT.
func (s *Socket) Destination(addr string) (*Destination, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse IP:PORT %q: %w", addr, err)
	}
	return &Destination{socket: s, addr: udpAddr}, nil
}

// Close closes the socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

var _ dispatch.Sender = (*Destination)(nil)

// Destination is one remote UDP listener.
type Destination struct {
	socket *Socket
	addr   *net.UDPAddr
}

// Name returns the destination as a udp:// URL.
func (d *Destination) Name() string {
	return "udp://" + d.addr.String()
}

// Format returns codec.Compact.
func (d *Destination) Format() codec.Format {
	return codec.Compact
}

// Send writes payload as one datagram.
func (d *Destination) Send(ctx context.Context, payload []byte) error {
	n, err := d.socket.conn.WriteToUDP(payload, d.addr)
	if err != nil {
		return err
	}
	dlog.Trace(ctx, d.socket.logger, "Sent datagram", slog.Int("bytes", n), slog.String("addr", d.addr.String()))
	return nil
}
