package protocol

import (
	"testing"

	"github.com/opd-ai/tcplab/transport"
)

// recordingContext is a minimal SystemContext that counts calls.
type recordingContext struct {
	sent      []transport.Packet
	delivered [][]byte
	logs      []string
	nowMS     uint64
}

func (r *recordingContext) SendPacket(pkt transport.Packet) { r.sent = append(r.sent, pkt) }
func (r *recordingContext) StartTimer(uint64, uint32)       {}
func (r *recordingContext) CancelTimer(uint32)              {}
func (r *recordingContext) DeliverData(data []byte)         { r.delivered = append(r.delivered, data) }
func (r *recordingContext) Log(msg string)                  { r.logs = append(r.logs, msg) }
func (r *recordingContext) Now() uint64                     { return r.nowMS }
func (r *recordingContext) RecordMetric(string, float64)    {}

// TestBaseSatisfiesContract verifies that Base alone is a complete,
// side-effect-free TransportProtocol.
func TestBaseSatisfiesContract(t *testing.T) {
	var p TransportProtocol = Base{}
	ctx := &recordingContext{}

	p.Init(ctx)
	p.OnPacket(ctx, transport.NewSegment(0, 0, 0, []byte("x")))
	p.OnTimer(ctx, 1)
	p.OnAppData(ctx, []byte("y"))

	if len(ctx.sent) != 0 || len(ctx.delivered) != 0 || len(ctx.logs) != 0 {
		t.Error("Base handlers must have no side effects")
	}
}

// passthroughReceiver overrides only OnPacket, relying on Base for the rest.
type passthroughReceiver struct {
	Base
}

func (passthroughReceiver) OnPacket(ctx SystemContext, pkt transport.Packet) {
	ctx.DeliverData(pkt.Payload)
}

// TestEmbeddedBaseOverride verifies the intended embedding pattern: a module
// overriding a single handler keeps no-ops for the rest.
func TestEmbeddedBaseOverride(t *testing.T) {
	var p TransportProtocol = passthroughReceiver{}
	ctx := &recordingContext{}

	p.OnAppData(ctx, []byte("ignored"))
	if len(ctx.sent) != 0 {
		t.Error("unoverridden handler sent a packet")
	}

	p.OnPacket(ctx, transport.NewSegment(0, 0, 0, []byte("hello")))
	if len(ctx.delivered) != 1 || string(ctx.delivered[0]) != "hello" {
		t.Errorf("override not invoked: %v", ctx.delivered)
	}
}
