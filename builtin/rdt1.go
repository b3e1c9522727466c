// Package builtin provides the protocol modules that ship with the harness
// and a registry to resolve them by name.
//
// rdt1 is the minimal pass-through pair: no reliability at all. rdt2 is an
// alternating-bit protocol with checksums, ACKs and a retransmit timer.
// secure (package securechan) runs a Noise handshake over the channel.
package builtin

import (
	"fmt"

	"github.com/opd-ai/tcplab/protocol"
	"github.com/opd-ai/tcplab/transport"
)

// Rdt1Sender transmits application data verbatim with a monotonically
// increasing sequence number starting at 0. It implements no reliability:
// inbound packets and timers are ignored.
type Rdt1Sender struct {
	protocol.Base
	nextSeq uint32
}

// Init logs readiness.
func (s *Rdt1Sender) Init(ctx protocol.SystemContext) {
	ctx.Log("rdt1 sender ready")
}

// OnAppData wraps the payload in a header carrying the current sequence
// number, forwards it verbatim and increments the counter.
func (s *Rdt1Sender) OnAppData(ctx protocol.SystemContext, data []byte) {
	pkt := transport.NewSegment(s.nextSeq, 0, 0, data)
	ctx.Log(fmt.Sprintf("rdt1 send seq=%d (%d bytes)", s.nextSeq, len(data)))
	ctx.SendPacket(pkt)
	s.nextSeq++
	ctx.RecordMetric("rdt1.sent", float64(s.nextSeq))
}

// Rdt1Receiver delivers every inbound payload upward verbatim, once per
// packet, in arrival order. No reliability logic.
type Rdt1Receiver struct {
	protocol.Base
}

// Init logs readiness.
func (r *Rdt1Receiver) Init(ctx protocol.SystemContext) {
	ctx.Log("rdt1 receiver ready")
}

// OnPacket forwards the payload to the application layer.
func (r *Rdt1Receiver) OnPacket(ctx protocol.SystemContext, pkt transport.Packet) {
	ctx.Log(fmt.Sprintf("rdt1 deliver seq=%d (%d bytes)", pkt.Header.SeqNum, pkt.Len()))
	ctx.DeliverData(pkt.Payload)
}
