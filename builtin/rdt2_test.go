package builtin

import (
	"bytes"
	"testing"

	"github.com/opd-ai/tcplab/checksum"
	"github.com/opd-ai/tcplab/transport"
)

// TestRdt2StopAndWait verifies one packet in flight, queueing, and the
// alternating sequence bit.
func TestRdt2StopAndWait(t *testing.T) {
	sender := &Rdt2Sender{}
	ctx := newMockContext()
	sender.Init(ctx)

	sender.OnAppData(ctx, []byte("first"))
	sender.OnAppData(ctx, []byte("second"))

	if len(ctx.sent) != 1 {
		t.Fatalf("sent %d packets with no ACK, want 1", len(ctx.sent))
	}
	if ctx.sent[0].Header.SeqNum != 0 {
		t.Errorf("first seq = %d, want 0", ctx.sent[0].Header.SeqNum)
	}

	// ACK for seq 0 releases the queued payload with the alternated bit.
	sender.OnPacket(ctx, transport.NewAck(0, 0, 0))
	if len(ctx.sent) != 2 {
		t.Fatalf("sent %d packets after ACK, want 2", len(ctx.sent))
	}
	if ctx.sent[1].Header.SeqNum != 1 {
		t.Errorf("second seq = %d, want 1", ctx.sent[1].Header.SeqNum)
	}
	if string(ctx.sent[1].Payload) != "second" {
		t.Errorf("second payload = %q", ctx.sent[1].Payload)
	}
	if len(ctx.cancelled) != 1 || ctx.cancelled[0] != rdt2DataTimer {
		t.Errorf("ACK must cancel the retransmit timer: %v", ctx.cancelled)
	}
}

// TestRdt2SenderChecksums verifies every data packet carries the payload's
// internet checksum.
func TestRdt2SenderChecksums(t *testing.T) {
	sender := &Rdt2Sender{}
	ctx := newMockContext()
	sender.Init(ctx)

	payload := []byte("AB")
	sender.OnAppData(ctx, payload)

	if got, want := ctx.sent[0].Header.Checksum, checksum.Sum(payload); got != want {
		t.Errorf("checksum = 0x%04X, want 0x%04X", got, want)
	}
}

// TestRdt2Retransmit verifies timeout behavior and idempotence to spurious
// timer firings.
func TestRdt2Retransmit(t *testing.T) {
	sender := &Rdt2Sender{}
	ctx := newMockContext()
	sender.Init(ctx)

	sender.OnAppData(ctx, []byte("data"))
	if len(ctx.started) != 1 || ctx.started[0].timerID != rdt2DataTimer {
		t.Fatalf("expected retransmit timer start, got %v", ctx.started)
	}

	sender.OnTimer(ctx, rdt2DataTimer)
	if len(ctx.sent) != 2 {
		t.Fatalf("sent %d packets after timeout, want 2", len(ctx.sent))
	}
	if !bytes.Equal(ctx.sent[0].Payload, ctx.sent[1].Payload) ||
		ctx.sent[0].Header.SeqNum != ctx.sent[1].Header.SeqNum {
		t.Error("retransmission must repeat the outstanding packet")
	}

	// ACK, then a stale timer firing (fire-after-cancel race) must be a no-op.
	sender.OnPacket(ctx, transport.NewAck(0, 0, 0))
	before := len(ctx.sent)
	sender.OnTimer(ctx, rdt2DataTimer)
	if len(ctx.sent) != before {
		t.Error("spurious timer firing retransmitted after ACK")
	}
}

// TestRdt2SenderIgnoresWrongAck verifies duplicate and mismatched ACKs do
// not advance the protocol.
func TestRdt2SenderIgnoresWrongAck(t *testing.T) {
	sender := &Rdt2Sender{}
	ctx := newMockContext()
	sender.Init(ctx)

	sender.OnAppData(ctx, []byte("data"))
	sender.OnPacket(ctx, transport.NewAck(1, 1, 0)) // wrong ack num
	sender.OnPacket(ctx, transport.NewSegment(0, 0, 0, nil)) // not an ACK

	if len(ctx.sent) != 1 {
		t.Errorf("wrong ACKs must not release the channel: %d sends", len(ctx.sent))
	}
}

// TestRdt2ReceiverInOrderDelivery verifies the deliver-and-ACK path.
func TestRdt2ReceiverInOrderDelivery(t *testing.T) {
	receiver := &Rdt2Receiver{}
	ctx := newMockContext()
	receiver.Init(ctx)

	payload := []byte("hello")
	pkt := transport.NewSegment(0, 0, 0, payload)
	pkt.Header.Checksum = checksum.Sum(payload)
	receiver.OnPacket(ctx, pkt)

	if len(ctx.delivered) != 1 || !bytes.Equal(ctx.delivered[0], payload) {
		t.Fatalf("delivered = %v", ctx.delivered)
	}
	if len(ctx.sent) != 1 || !ctx.sent[0].Header.IsACK() || ctx.sent[0].Header.AckNum != 0 {
		t.Fatalf("expected ACK 0, got %v", ctx.sent)
	}
}

// TestRdt2ReceiverCorruption verifies a checksum mismatch is re-ACKed, not
// delivered, and not treated as an error by the harness.
func TestRdt2ReceiverCorruption(t *testing.T) {
	receiver := &Rdt2Receiver{}
	ctx := newMockContext()
	receiver.Init(ctx)

	// Deliver seq 0 cleanly so lastAcked is 0.
	good := transport.NewSegment(0, 0, 0, []byte("ok"))
	good.Header.Checksum = checksum.Sum(good.Payload)
	receiver.OnPacket(ctx, good)

	// Corrupted seq 1: checksum of different bytes.
	bad := transport.NewSegment(1, 0, 0, []byte("corrupted"))
	bad.Header.Checksum = checksum.Sum([]byte("original"))
	receiver.OnPacket(ctx, bad)

	if len(ctx.delivered) != 1 {
		t.Fatalf("corrupt packet must not be delivered: %d deliveries", len(ctx.delivered))
	}
	last := ctx.sent[len(ctx.sent)-1]
	if !last.Header.IsACK() || last.Header.AckNum != 0 {
		t.Errorf("expected re-ACK of 0, got ack=%d", last.Header.AckNum)
	}
	if ctx.metrics["rdt2.corrupt"] != 1 {
		t.Errorf("corruption metric = %v", ctx.metrics["rdt2.corrupt"])
	}
}

// TestRdt2ReceiverDuplicate verifies a retransmitted duplicate is re-ACKed
// without a second delivery.
func TestRdt2ReceiverDuplicate(t *testing.T) {
	receiver := &Rdt2Receiver{}
	ctx := newMockContext()
	receiver.Init(ctx)

	pkt := transport.NewSegment(0, 0, 0, []byte("dup"))
	pkt.Header.Checksum = checksum.Sum(pkt.Payload)
	receiver.OnPacket(ctx, pkt)
	receiver.OnPacket(ctx, pkt)

	if len(ctx.delivered) != 1 {
		t.Errorf("duplicate delivered %d times", len(ctx.delivered))
	}
	if len(ctx.sent) != 2 {
		t.Fatalf("expected an ACK per packet, got %d", len(ctx.sent))
	}
	for _, ack := range ctx.sent {
		if ack.Header.AckNum != 0 {
			t.Errorf("ack = %d, want 0", ack.Header.AckNum)
		}
	}
}

// TestRdt2EndToEnd drives the pair by hand through loss-free exchange of
// three payloads.
func TestRdt2EndToEnd(t *testing.T) {
	sender, receiver := &Rdt2Sender{}, &Rdt2Receiver{}
	sctx, rctx := newMockContext(), newMockContext()
	sender.Init(sctx)
	receiver.Init(rctx)

	payloads := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, p := range payloads {
		sender.OnAppData(sctx, p)
	}

	// Shuttle packets until both sides go quiet.
	for len(sctx.sent) > 0 || len(rctx.sent) > 0 {
		out := sctx.sent
		sctx.sent = nil
		for _, pkt := range out {
			receiver.OnPacket(rctx, pkt)
		}
		acks := rctx.sent
		rctx.sent = nil
		for _, pkt := range acks {
			sender.OnPacket(sctx, pkt)
		}
	}

	if len(rctx.delivered) != len(payloads) {
		t.Fatalf("delivered %d payloads, want %d", len(rctx.delivered), len(payloads))
	}
	for i, want := range payloads {
		if !bytes.Equal(rctx.delivered[i], want) {
			t.Errorf("delivery %d = %q, want %q", i, rctx.delivered[i], want)
		}
	}
}
