// Package protocol defines the capability contract between the simulation
// host and protocol modules, and the service surface modules call to affect
// the outside world.
//
// A module implements [TransportProtocol]. The host drives a module instance
// through a fixed lifecycle: Init exactly once, then an unbounded,
// host-ordered sequence of OnPacket / OnTimer / OnAppData calls, then the
// instance is discarded. For any single instance those calls are strictly
// serialized by the host; modules keep internal state without locking.
//
// Modules that only need a subset of the handlers embed [Base], which
// provides no-op defaults:
//
//	type Sender struct {
//	    protocol.Base
//	    nextSeq uint32
//	}
//
//	func (s *Sender) OnAppData(ctx protocol.SystemContext, data []byte) {
//	    pkt := transport.NewSegment(s.nextSeq, 0, 0, data)
//	    ctx.SendPacket(pkt)
//	    s.nextSeq++
//	}
package protocol

import "github.com/opd-ai/tcplab/transport"

// SystemContext is the fixed set of host services available to a protocol
// module. Every call is one-way, fire-and-forget, except Now.
//
// Log and RecordMetric are observability side-channels and must never affect
// protocol correctness. A module reports internal failures through them and
// returns normally rather than panicking across the boundary.
type SystemContext interface {
	// SendPacket hands a fully formed packet to the simulated network for
	// delivery to the instance's peer. Delivery is not acknowledged
	// synchronously; loss, delay and corruption are host-simulated.
	SendPacket(pkt transport.Packet)

	// StartTimer requests that OnTimer(timerID) fire no earlier than delayMS
	// milliseconds of simulated time later. Starting a timer whose ID is
	// already pending replaces the pending timer.
	StartTimer(delayMS uint64, timerID uint32)

	// CancelTimer cancels a pending timer, best effort. Cancellation is
	// guaranteed only for timers not yet dequeued for firing; modules must
	// tolerate a spurious firing after a cancel.
	CancelTimer(timerID uint32)

	// DeliverData passes reassembled, validated application payload upward,
	// out of the transport layer entirely.
	DeliverData(data []byte)

	// Log emits an unstructured debug message on the host's log.
	Log(message string)

	// Now returns the host's monotonic clock in milliseconds. It is
	// non-decreasing across calls within one instance's lifetime.
	Now() uint64

	// RecordMetric records a named sample for later inspection (e.g. cwnd,
	// ssthresh, rtt estimates).
	RecordMetric(name string, value float64)
}

// TransportProtocol is the interface every protocol module implements.
//
// Handlers are expected to be short and non-blocking: the simulation models
// time via timers, never by sleeping inside a handler.
type TransportProtocol interface {
	// Init is called exactly once after construction, before any event
	// handler, to establish internal state.
	Init(ctx SystemContext)

	// OnPacket is invoked once per packet the host determines has arrived
	// for this instance, in the host's delivery order. The host may reorder
	// relative to send order.
	OnPacket(ctx SystemContext, pkt transport.Packet)

	// OnTimer is invoked when a previously started timer expires and was not
	// successfully cancelled. Each invocation is authoritative proof of
	// elapsed time; no other state is preserved for the module.
	OnTimer(ctx SystemContext, timerID uint32)

	// OnAppData is invoked when new application bytes are submitted to this
	// instance for transmission.
	OnAppData(ctx SystemContext, data []byte)
}

// Base provides no-op implementations of all TransportProtocol methods so a
// module can implement only the handlers relevant to its role. A pure sender
// embeds Base and overrides OnAppData; a pure receiver overrides OnPacket.
type Base struct{}

// Init does nothing.
func (Base) Init(SystemContext) {}

// OnPacket ignores the packet.
func (Base) OnPacket(SystemContext, transport.Packet) {}

// OnTimer ignores the timer.
func (Base) OnTimer(SystemContext, uint32) {}

// OnAppData ignores the data.
func (Base) OnAppData(SystemContext, []byte) {}
