package socket

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/localrivet/niftynet/logx"
	"github.com/localrivet/niftynet/metrics"
	"github.com/localrivet/niftynet/protocol"
	"github.com/localrivet/niftynet/types"
)

// receiveBufferSize is the reusable datagram buffer, large enough for any
// UDP payload.
const receiveBufferSize = 65535

// Socket hosts any number of connections over one datagram endpoint.
//
// A Socket is single-threaded: the caller drives it by calling Update with
// a monotonic time value, and all other methods must be called from the
// same goroutine. Time is never queried internally, which keeps the engine
// deterministic and testable.
type Socket struct {
	id     string
	config Config
	conn   PacketConn
	logger types.Logger

	acceptAll bool
	closed    bool

	receiveBuffer []byte
	connections   map[netip.AddrPort]*connection
}

// Option configures a Socket beyond its Config.
type Option func(*Socket)

// WithLogger sets the logger used for connection lifecycle and discarded
// datagram messages.
func WithLogger(logger types.Logger) Option {
	return func(s *Socket) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAcceptAll makes the socket accept every connection request without
// requiring the handler to set Accept. Handlers can still veto individual
// requests by setting *Accept to false.
func WithAcceptAll() Option {
	return func(s *Socket) {
		s.acceptAll = true
	}
}

// New creates a socket over an existing datagram endpoint. Most callers
// want Bind; New is the seam for in-memory endpoints in tests and
// simulators.
func New(conn PacketConn, config Config, options ...Option) *Socket {
	s := &Socket{
		id:            uuid.NewString(),
		config:        config,
		conn:          conn,
		logger:        logx.NewLogger("error"),
		receiveBuffer: make([]byte, receiveBufferSize),
		connections:   make(map[netip.AddrPort]*connection),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Bind opens a non-blocking UDP endpoint on addr and creates a socket over
// it.
func Bind(addr netip.AddrPort, config Config, options ...Option) (*Socket, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to bind udp socket: %w", err)
	}

	return New(NewUDPPacketConn(conn), config, options...), nil
}

// ID returns the socket's instance id, used to correlate log lines and
// metric labels across sockets in one process.
func (s *Socket) ID() string {
	return s.id
}

// LocalAddr returns the endpoint's bound address.
func (s *Socket) LocalAddr() netip.AddrPort {
	return s.conn.LocalAddr()
}

// Update receives packets and updates internal state, reporting events to
// handler. now is a monotonic duration since an application-chosen epoch
// and must never go backwards.
//
// Events arrive in the order: per-connection errors, NewConnection for
// connections that just completed their handshake, ClosedConnection for
// dropped connections, ConnectionRequest for inbound handshakes, then
// Received for every message completed this tick.
func (s *Socket) Update(now time.Duration, handler EventHandler) {
	if s.closed {
		return
	}

	// tick the connections
	var drop []netip.AddrPort

	for _, conn := range s.connections {
		if err := conn.update(now, &s.config, s.conn); err != nil {
			handler(ErrorEvent{Err: err})
		}

		if conn.shouldDrop() {
			drop = append(drop, conn.addr)
		}

		if conn.takeJustConnected() {
			handler(NewConnectionEvent{Addr: conn.addr})
		}
	}

	for _, addr := range drop {
		delete(s.connections, addr)
		s.logger.Info("connection closed: %v", addr)
		handler(ClosedConnectionEvent{Addr: addr})
	}

	// drain the endpoint
	s.drain(now, handler)

	// flush complete messages
	for _, conn := range s.connections {
		addr := conn.addr
		conn.flushMessages(now, func(data []byte) {
			handler(ReceivedEvent{Addr: addr, Data: data})
		})
	}
}

func (s *Socket) drain(now time.Duration, handler EventHandler) {
	for {
		n, addr, ok, err := s.conn.ReceiveFrom(s.receiveBuffer)
		if err != nil {
			if ignorableReceiveError(err) {
				continue
			}
			handler(ErrorEvent{Err: err})
			return
		}
		if !ok {
			return
		}

		data := s.receiveBuffer[:n]

		if handshake, ok := protocol.DeserializeHandshake(data); ok {
			s.handleHandshake(now, addr, handshake, handler)
			continue
		}

		conn, ok := s.connections[addr]
		if !ok {
			s.logger.Debug("discarding datagram from unknown address %v", addr)
			continue
		}

		packet, err := protocol.DeserializePacket(data)
		if err != nil {
			handler(ErrorEvent{Err: &MalformedPacketError{Addr: addr, Err: err}})
			continue
		}

		if err := conn.receive(now, &s.config, packet); err != nil {
			handler(ErrorEvent{Err: &MalformedPacketError{Addr: addr, Err: err}})
		}
	}
}

func (s *Socket) handleHandshake(now time.Duration, addr netip.AddrPort, handshake protocol.Handshake, handler EventHandler) {
	if handshake.ProtocolID != s.config.ProtocolID {
		// unsolicited scans should not produce noise
		s.logger.Debug("ignoring handshake from %v with protocol id %d", addr, handshake.ProtocolID)
		return
	}

	if _, ok := s.connections[addr]; ok {
		// duplicate handshake for a live connection
		return
	}

	accept := s.acceptAll
	handler(ConnectionRequestEvent{Addr: addr, Accept: &accept})
	if !accept {
		return
	}

	s.connections[addr] = newConnection(now, addr, false)
	s.logger.Info("accepted connection from %v", addr)
}

// OpenConnection starts a connection to addr. The handshake is carried out
// over the following updates; a NewConnection event fires once the first
// heartbeat from the peer arrives. It fails if a connection to addr
// already exists.
func (s *Socket) OpenConnection(now time.Duration, addr netip.AddrPort) error {
	if _, ok := s.connections[addr]; ok {
		return ErrConnectionExists
	}

	s.connections[addr] = newConnection(now, addr, true)
	return nil
}

// Send queues a message for delivery to addr. The payload is copied; the
// caller may reuse data. It fails if there is no connection to addr, see
// OpenConnection.
func (s *Socket) Send(addr netip.AddrPort, reliable bool, data []byte) error {
	conn, ok := s.connections[addr]
	if !ok {
		return ErrNoConnection
	}

	conn.send(reliable, append([]byte(nil), data...))
	return nil
}

// CloseConnection marks the connection to addr for closing. The connection
// survives one more tick so its Disconnect blob ships, then a
// ClosedConnection event fires. It fails if there is no connection to
// addr.
func (s *Socket) CloseConnection(addr netip.AddrPort) error {
	conn, ok := s.connections[addr]
	if !ok {
		return ErrNoConnection
	}

	conn.drop()
	return nil
}

// MessagesInTransit returns the number of messages queued to addr that
// have not been fully delivered yet.
func (s *Socket) MessagesInTransit(addr netip.AddrPort) (int, error) {
	conn, ok := s.connections[addr]
	if !ok {
		return 0, ErrNoConnection
	}

	return conn.inTransit(), nil
}

// RoundTripTime returns the averaged round trip time to addr, ok=false
// before the first heartbeat echo.
func (s *Socket) RoundTripTime(addr netip.AddrPort) (time.Duration, bool) {
	conn, found := s.connections[addr]
	if !found {
		return 0, false
	}
	return conn.roundTripTime()
}

// Addresses lists the peers with live connections.
func (s *Socket) Addresses() []netip.AddrPort {
	addrs := make([]netip.AddrPort, 0, len(s.connections))
	for addr := range s.connections {
		addrs = append(addrs, addr)
	}
	return addrs
}

// ConnectionMetrics returns a snapshot of the counters for the connection
// to addr, ok=false if there is none.
func (s *Socket) ConnectionMetrics(addr netip.AddrPort) (metrics.ConnectionMetrics, bool) {
	conn, ok := s.connections[addr]
	if !ok {
		return metrics.ConnectionMetrics{}, false
	}
	return conn.metrics(), true
}

// Close releases the endpoint. In-flight state is abandoned; no Disconnect
// blobs are sent.
func (s *Socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Ensure the socket can feed the metrics collector.
var _ metrics.Source = (*Socket)(nil)
