package builtin

import (
	"fmt"

	"github.com/opd-ai/tcplab/checksum"
	"github.com/opd-ai/tcplab/protocol"
	"github.com/opd-ai/tcplab/transport"
)

const (
	rdt2DataTimer     uint32 = 1
	rdt2DataTimeoutMS uint64 = 1000
)

// Rdt2Sender is a stop-and-wait alternating-bit sender. One packet is in
// flight at a time; further application data queues until the outstanding
// packet is acknowledged. An unacknowledged packet is retransmitted on a
// 1000 ms timer.
type Rdt2Sender struct {
	protocol.Base
	nextSeq    uint32
	waitingAck bool
	pending    [][]byte
	lastPacket transport.Packet
	lastSentMS uint64
}

// Init logs readiness.
func (s *Rdt2Sender) Init(ctx protocol.SystemContext) {
	ctx.Log("rdt2 sender ready")
}

// OnAppData queues the payload and sends it immediately if the channel is
// idle.
func (s *Rdt2Sender) OnAppData(ctx protocol.SystemContext, data []byte) {
	s.pending = append(s.pending, data)
	s.trySend(ctx)
}

// OnPacket handles ACKs for the outstanding packet. Anything else is
// ignored.
func (s *Rdt2Sender) OnPacket(ctx protocol.SystemContext, pkt transport.Packet) {
	if !pkt.Header.IsACK() {
		return
	}
	if !s.waitingAck || pkt.Header.AckNum != s.nextSeq {
		return
	}

	ctx.Log(fmt.Sprintf("rdt2 acked seq=%d rtt=%dms", pkt.Header.AckNum, ctx.Now()-s.lastSentMS))
	ctx.RecordMetric("rdt2.rtt_ms", float64(ctx.Now()-s.lastSentMS))
	ctx.CancelTimer(rdt2DataTimer)
	s.waitingAck = false
	s.nextSeq ^= 1
	s.trySend(ctx)
}

// OnTimer retransmits the outstanding packet. Spurious firings after a
// cancel race are harmless: waitingAck is already false.
func (s *Rdt2Sender) OnTimer(ctx protocol.SystemContext, timerID uint32) {
	if timerID != rdt2DataTimer || !s.waitingAck {
		return
	}

	ctx.Log(fmt.Sprintf("rdt2 timeout, retransmitting seq=%d", s.lastPacket.Header.SeqNum))
	ctx.RecordMetric("rdt2.retransmits", 1)
	ctx.SendPacket(s.lastPacket.Clone())
	ctx.StartTimer(rdt2DataTimeoutMS, rdt2DataTimer)
	s.lastSentMS = ctx.Now()
}

func (s *Rdt2Sender) trySend(ctx protocol.SystemContext) {
	if s.waitingAck || len(s.pending) == 0 {
		return
	}

	payload := s.pending[0]
	s.pending = s.pending[1:]

	pkt := transport.NewSegment(s.nextSeq, 0, 0, payload)
	pkt.Header.Checksum = checksum.Sum(payload)

	ctx.Log(fmt.Sprintf("rdt2 send seq=%d (%d bytes)", s.nextSeq, len(payload)))
	ctx.SendPacket(pkt.Clone())
	ctx.StartTimer(rdt2DataTimeoutMS, rdt2DataTimer)

	s.lastPacket = pkt
	s.lastSentMS = ctx.Now()
	s.waitingAck = true
}

// Rdt2Receiver is the alternating-bit receiver. In-order, checksum-valid
// packets are delivered and ACKed; anything else re-ACKs the last good
// sequence number so the sender retransmits.
type Rdt2Receiver struct {
	protocol.Base
	expectedSeq uint32
	lastAcked   uint32
}

// Init primes lastAcked so the first duplicate/corrupt packet still
// produces a meaningful re-ACK.
func (r *Rdt2Receiver) Init(ctx protocol.SystemContext) {
	ctx.Log("rdt2 receiver ready")
	r.lastAcked = r.expectedSeq ^ 1
}

// OnPacket validates the checksum and sequence number before delivering.
func (r *Rdt2Receiver) OnPacket(ctx protocol.SystemContext, pkt transport.Packet) {
	want := checksum.Sum(pkt.Payload)
	if want != pkt.Header.Checksum {
		ctx.Log(fmt.Sprintf("rdt2 checksum mismatch seq=%d (want 0x%04X, got 0x%04X)",
			pkt.Header.SeqNum, want, pkt.Header.Checksum))
		ctx.RecordMetric("rdt2.corrupt", 1)
		r.sendAck(ctx, r.lastAcked)
		return
	}

	if pkt.Header.SeqNum == r.expectedSeq {
		ctx.Log(fmt.Sprintf("rdt2 recv seq=%d (%d bytes)", pkt.Header.SeqNum, pkt.Len()))
		ctx.DeliverData(pkt.Payload)
		r.sendAck(ctx, pkt.Header.SeqNum)
		r.expectedSeq ^= 1
		return
	}

	ctx.Log(fmt.Sprintf("rdt2 unexpected seq=%d (expect %d), re-ack %d",
		pkt.Header.SeqNum, r.expectedSeq, r.lastAcked))
	r.sendAck(ctx, r.lastAcked)
}

func (r *Rdt2Receiver) sendAck(ctx protocol.SystemContext, seq uint32) {
	ctx.SendPacket(transport.NewAck(seq, seq, 0))
	r.lastAcked = seq
}
