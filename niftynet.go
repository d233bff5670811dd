// Package niftynet provides a reliable-optional datagram transport layered
// on top of UDP.
//
// # Overview
//
// NiftyNet gives applications discrete byte-blob messaging over a single
// UDP endpoint: connection establishment with protocol identification,
// message framing larger than the datagram MTU, selective per-message
// reliability, round-trip-time estimation via heartbeats, connection
// liveness timeouts, graceful disconnects, and bandwidth-efficient packet
// packing that coalesces small control and data units into shared
// datagrams.
//
// # Core Features
//
// - One UDP endpoint hosting any number of connections
// - Per-message reliability: reliable messages are retransmitted until
// acknowledged, unreliable messages are sent once and may be dropped
// - Fragmentation and reassembly for messages larger than the MTU
// - RTT-paced retransmission and adaptive receive-side pruning
// - Caller-driven monotonic time, making the engine deterministic and
// fully testable without a network or a clock
// - Connection counters with an optional Prometheus collector
//
// # Organization
//
// The library is organized into the following main packages:
//
//   - github.com/localrivet/niftynet/socket: the transport engine — bind,
//     connect, send and the per-tick update loop
//   - github.com/localrivet/niftynet/protocol: the on-wire packet, blob and
//     handshake formats
//   - github.com/localrivet/niftynet/interval: delivered-byte-range
//     bookkeeping shared by sender and receiver
//   - github.com/localrivet/niftynet/metrics: per-connection counters and a
//     Prometheus collector
//
// # Basic Usage
//
//	import "github.com/localrivet/niftynet/socket"
//
//	sock, err := socket.Bind(addr, socket.DefaultConfig())
//	if err != nil {
//	    log.Fatalf("failed to bind: %v", err)
//	}
//	defer sock.Close()
//
//	sock.OpenConnection(now(), peer)
//	sock.Send(peer, true, []byte("hello"))
//
//	for {
//	    sock.Update(now(), func(ev socket.Event) {
//	        switch ev := ev.(type) {
//	        case socket.ReceivedEvent:
//	            fmt.Printf("%v sent %q\n", ev.Addr, ev.Data)
//	        case socket.ConnectionRequestEvent:
//	            *ev.Accept = true
//	        }
//	    })
//	    time.Sleep(10 * time.Millisecond)
//	}
//
// The now function supplies a monotonic duration since any fixed epoch,
// for example time.Since(start).
package niftynet

// Version is the current version of the niftynet library.
const Version = "0.1.0"
