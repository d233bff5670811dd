package socket

import (
	"net/netip"
	"time"
)

// memNetwork is a deterministic in-memory datagram network for tests. The
// test drives its clock alongside the sockets' update clock; datagrams
// become visible once their one-way latency has elapsed. An optional drop
// function simulates loss.
type memNetwork struct {
	now     time.Duration
	latency time.Duration
	drop    func(from, to netip.AddrPort, payload []byte) bool

	endpoints map[netip.AddrPort]*memConn
}

type memDatagram struct {
	from    netip.AddrPort
	payload []byte
	readyAt time.Duration
}

// memConn is one endpoint of a memNetwork.
type memConn struct {
	network *memNetwork
	addr    netip.AddrPort
	queue   []memDatagram
	closed  bool
}

func newMemNetwork() *memNetwork {
	return &memNetwork{
		endpoints: make(map[netip.AddrPort]*memConn),
	}
}

func (n *memNetwork) endpoint(addr string) *memConn {
	conn := &memConn{
		network: n,
		addr:    netip.MustParseAddrPort(addr),
	}
	n.endpoints[conn.addr] = conn
	return conn
}

func (c *memConn) ReceiveFrom(p []byte) (int, netip.AddrPort, bool, error) {
	if len(c.queue) == 0 || c.queue[0].readyAt > c.network.now {
		return 0, netip.AddrPort{}, false, nil
	}

	datagram := c.queue[0]
	c.queue = c.queue[1:]

	n := copy(p, datagram.payload)
	return n, datagram.from, true, nil
}

func (c *memConn) SendTo(p []byte, addr netip.AddrPort) (int, error) {
	if c.network.drop != nil && c.network.drop(c.addr, addr, p) {
		return len(p), nil
	}

	peer, ok := c.network.endpoints[addr]
	if !ok || peer.closed {
		return len(p), nil
	}

	peer.queue = append(peer.queue, memDatagram{
		from:    c.addr,
		payload: append([]byte(nil), p...),
		readyAt: c.network.now + c.network.latency,
	})
	return len(p), nil
}

func (c *memConn) LocalAddr() netip.AddrPort {
	return c.addr
}

func (c *memConn) Close() error {
	c.closed = true
	return nil
}

// eventRecorder collects events by kind for assertions.
type eventRecorder struct {
	received  []ReceivedEvent
	opened    []netip.AddrPort
	requested []netip.AddrPort
	closed    []netip.AddrPort
	errors    []error

	accept bool
}

func (r *eventRecorder) handle(ev Event) {
	switch ev := ev.(type) {
	case ReceivedEvent:
		r.received = append(r.received, ev)
	case NewConnectionEvent:
		r.opened = append(r.opened, ev.Addr)
	case ConnectionRequestEvent:
		r.requested = append(r.requested, ev.Addr)
		*ev.Accept = r.accept
	case ClosedConnectionEvent:
		r.closed = append(r.closed, ev.Addr)
	case ErrorEvent:
		r.errors = append(r.errors, ev.Err)
	}
}

// pair wires two sockets over a fresh in-memory network.
type pair struct {
	network *memNetwork

	client       *Socket
	clientAddr   netip.AddrPort
	clientEvents *eventRecorder

	server       *Socket
	serverAddr   netip.AddrPort
	serverEvents *eventRecorder
}

func newPair(clientConfig, serverConfig Config) *pair {
	network := newMemNetwork()

	clientConn := network.endpoint("127.0.0.1:40001")
	serverConn := network.endpoint("127.0.0.1:40002")

	return &pair{
		network:      network,
		client:       New(clientConn, clientConfig),
		clientAddr:   clientConn.addr,
		clientEvents: &eventRecorder{accept: true},
		server:       New(serverConn, serverConfig),
		serverAddr:   serverConn.addr,
		serverEvents: &eventRecorder{accept: true},
	}
}

// step advances the shared clock and runs one update on both sockets.
func (p *pair) step(now time.Duration) {
	p.network.now = now
	p.client.Update(now, p.clientEvents.handle)
	p.server.Update(now, p.serverEvents.handle)
}

// run steps the pair from start to end inclusive.
func (p *pair) run(start, end, tick time.Duration) {
	for now := start; now <= end; now += tick {
		p.step(now)
	}
}
