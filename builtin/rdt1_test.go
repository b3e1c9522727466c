package builtin

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/opd-ai/tcplab/transport"
)

// TestRdt1SenderSequenceNumbers verifies that sequence numbers increase by
// exactly 1 starting at 0 and payloads pass through untransformed.
func TestRdt1SenderSequenceNumbers(t *testing.T) {
	sender := &Rdt1Sender{}
	ctx := newMockContext()
	sender.Init(ctx)

	payloads := [][]byte{
		[]byte("x"),
		[]byte("yz"),
		[]byte("third payload"),
		{},
	}
	for _, p := range payloads {
		sender.OnAppData(ctx, p)
	}

	if len(ctx.sent) != len(payloads) {
		t.Fatalf("sent %d packets, want %d", len(ctx.sent), len(payloads))
	}
	for i, pkt := range ctx.sent {
		if pkt.Header.SeqNum != uint32(i) {
			t.Errorf("packet %d: seq = %d, want %d", i, pkt.Header.SeqNum, i)
		}
		if !bytes.Equal(pkt.Payload, payloads[i]) {
			t.Errorf("packet %d: payload = %q, want %q", i, pkt.Payload, payloads[i])
		}
	}
}

// TestRdt1SenderFreshInstance checks the counter starts at zero: payloads
// "x" then "yz" produce seq 0 and 1.
func TestRdt1SenderFreshInstance(t *testing.T) {
	sender := &Rdt1Sender{}
	ctx := newMockContext()
	sender.Init(ctx)

	sender.OnAppData(ctx, []byte("x"))
	sender.OnAppData(ctx, []byte("yz"))

	if len(ctx.sent) != 2 {
		t.Fatalf("sent %d packets, want 2", len(ctx.sent))
	}
	if ctx.sent[0].Header.SeqNum != 0 || string(ctx.sent[0].Payload) != "x" {
		t.Errorf("first packet: seq=%d payload=%q", ctx.sent[0].Header.SeqNum, ctx.sent[0].Payload)
	}
	if ctx.sent[1].Header.SeqNum != 1 || string(ctx.sent[1].Payload) != "yz" {
		t.Errorf("second packet: seq=%d payload=%q", ctx.sent[1].Header.SeqNum, ctx.sent[1].Payload)
	}
}

// TestRdt1SenderIgnoresEvents verifies the sender's unimplemented handlers
// stay no-ops.
func TestRdt1SenderIgnoresEvents(t *testing.T) {
	sender := &Rdt1Sender{}
	ctx := newMockContext()
	sender.Init(ctx)

	sender.OnPacket(ctx, transport.NewSegment(3, 0, transport.FlagACK, []byte("in")))
	sender.OnTimer(ctx, 7)

	if len(ctx.sent) != 0 || len(ctx.delivered) != 0 {
		t.Error("rdt1 sender must ignore packets and timers")
	}
}

// TestRdt1ReceiverPassThrough verifies one DeliverData per OnPacket with
// identical bytes, preserving order.
func TestRdt1ReceiverPassThrough(t *testing.T) {
	receiver := &Rdt1Receiver{}
	ctx := newMockContext()
	receiver.Init(ctx)

	var want [][]byte
	for i := 0; i < 5; i++ {
		payload := []byte(fmt.Sprintf("chunk-%d", i))
		want = append(want, payload)
		sender := &Rdt1Sender{}
		sctx := newMockContext()
		sender.OnAppData(sctx, payload)
		receiver.OnPacket(ctx, sctx.sent[0])
	}

	if len(ctx.delivered) != len(want) {
		t.Fatalf("delivered %d payloads, want %d", len(ctx.delivered), len(want))
	}
	for i := range want {
		if !bytes.Equal(ctx.delivered[i], want[i]) {
			t.Errorf("delivery %d: %q, want %q", i, ctx.delivered[i], want[i])
		}
	}
}

// TestRdt1InstanceIsolation verifies that two interleaved instances never
// observe each other's counters.
func TestRdt1InstanceIsolation(t *testing.T) {
	a, b := &Rdt1Sender{}, &Rdt1Sender{}
	actx, bctx := newMockContext(), newMockContext()

	a.OnAppData(actx, []byte("a0"))
	b.OnAppData(bctx, []byte("b0"))
	a.OnAppData(actx, []byte("a1"))
	b.OnAppData(bctx, []byte("b1"))
	a.OnAppData(actx, []byte("a2"))

	for i, pkt := range actx.sent {
		if pkt.Header.SeqNum != uint32(i) {
			t.Errorf("instance a: packet %d has seq %d", i, pkt.Header.SeqNum)
		}
	}
	for i, pkt := range bctx.sent {
		if pkt.Header.SeqNum != uint32(i) {
			t.Errorf("instance b: packet %d has seq %d", i, pkt.Header.SeqNum)
		}
	}
}
