package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/tcplab/protocol"
	"github.com/opd-ai/tcplab/transport"
)

// countingProtocol records which handlers ran and echoes packets upward.
type countingProtocol struct {
	protocol.Base
	inits   int
	packets []transport.Packet
	timers  []uint32
	appData [][]byte
}

func (p *countingProtocol) Init(ctx protocol.SystemContext) {
	p.inits++
	ctx.Log("init")
}

func (p *countingProtocol) OnPacket(ctx protocol.SystemContext, pkt transport.Packet) {
	p.packets = append(p.packets, pkt)
	ctx.DeliverData(pkt.Payload)
}

func (p *countingProtocol) OnTimer(_ protocol.SystemContext, timerID uint32) {
	p.timers = append(p.timers, timerID)
}

func (p *countingProtocol) OnAppData(ctx protocol.SystemContext, data []byte) {
	p.appData = append(p.appData, data)
	ctx.SendPacket(transport.NewSegment(uint32(len(p.appData)-1), 0, 0, data))
}

// captureHost builds a HostTable that records everything a module calls.
type captureHost struct {
	sent      []transport.Packet
	delivered [][]byte
	logs      []string
	started   []uint32
	cancelled []uint32
	nowMS     uint64
}

func (c *captureHost) table() HostTable {
	return HostTable{
		SendPacket: func(seq, ack uint32, flags uint8, window, chk uint16, payload []byte) {
			c.sent = append(c.sent, transport.Packet{
				Header:  transport.TCPHeader{SeqNum: seq, AckNum: ack, Flags: flags, WindowSize: window, Checksum: chk},
				Payload: payload,
			})
		},
		StartTimer:   func(_ uint64, timerID uint32) { c.started = append(c.started, timerID) },
		CancelTimer:  func(timerID uint32) { c.cancelled = append(c.cancelled, timerID) },
		DeliverData:  func(data []byte) { c.delivered = append(c.delivered, data) },
		Log:          func(msg string) { c.logs = append(c.logs, msg) },
		Now:          func() uint64 { return c.nowMS },
		RecordMetric: func(string, float64) {},
	}
}

func TestNegotiate(t *testing.T) {
	require.NoError(t, Negotiate(ABIVersion))
	assert.ErrorIs(t, Negotiate(ABIVersion+1), ErrVersionMismatch)
	assert.ErrorIs(t, Negotiate(0), ErrVersionMismatch)
}

func TestDescriptorValidate(t *testing.T) {
	desc := Export("test", func() protocol.TransportProtocol { return &countingProtocol{} })
	require.NoError(t, desc.Validate())

	incomplete := &Descriptor{Name: "broken", Version: ABIVersion}
	assert.ErrorIs(t, incomplete.Validate(), ErrIncompleteDescriptor)

	wrongVersion := *desc
	wrongVersion.Version = ABIVersion + 1
	assert.ErrorIs(t, wrongVersion.Validate(), ErrVersionMismatch)
}

func TestExportLifecycle(t *testing.T) {
	proto := &countingProtocol{}
	desc := Export("test", func() protocol.TransportProtocol { return proto })

	host := &captureHost{}
	h := desc.Create(host.table())
	require.NotEqual(t, Handle(0), h)

	desc.Init(h)
	assert.Equal(t, 1, proto.inits)
	assert.Equal(t, []string{"init"}, host.logs)

	desc.OnAppData(h, []byte("payload"))
	require.Len(t, host.sent, 1)
	assert.Equal(t, uint32(0), host.sent[0].Header.SeqNum)
	assert.Equal(t, []byte("payload"), host.sent[0].Payload)

	desc.OnPacket(h, 5, 2, transport.FlagACK, 64, 0xBEBD, []byte("in"))
	require.Len(t, proto.packets, 1)
	assert.Equal(t, uint32(5), proto.packets[0].Header.SeqNum)
	assert.Equal(t, uint16(0xBEBD), proto.packets[0].Header.Checksum)
	require.Len(t, host.delivered, 1)
	assert.Equal(t, []byte("in"), host.delivered[0])

	desc.OnTimer(h, 9)
	assert.Equal(t, []uint32{9}, proto.timers)

	desc.Destroy(h)

	// Everything after destroy is a logged no-op, never a crash.
	desc.Init(h)
	desc.OnAppData(h, []byte("late"))
	desc.OnPacket(h, 0, 0, 0, 0, 0, nil)
	desc.OnTimer(h, 1)
	desc.Destroy(h)
	assert.Equal(t, 1, proto.inits)
	assert.Len(t, proto.appData, 1)
}

func TestExportCopiesBuffers(t *testing.T) {
	proto := &countingProtocol{}
	desc := Export("test", func() protocol.TransportProtocol { return proto })

	host := &captureHost{}
	h := desc.Create(host.table())

	in := []byte("mutable")
	desc.OnPacket(h, 0, 0, 0, 0, 0, in)
	in[0] = 'X'
	require.Len(t, proto.packets, 1)
	assert.Equal(t, []byte("mutable"), proto.packets[0].Payload, "inbound payload must be copied at the boundary")

	app := []byte("app")
	desc.OnAppData(h, app)
	app[0] = 'X'
	require.Len(t, proto.appData, 1)
	assert.Equal(t, []byte("app"), proto.appData[0])
}

func TestExportIsolatesInstances(t *testing.T) {
	desc := Export("test", func() protocol.TransportProtocol { return &countingProtocol{} })

	hostA, hostB := &captureHost{}, &captureHost{}
	a := desc.Create(hostA.table())
	b := desc.Create(hostB.table())
	require.NotEqual(t, a, b)

	desc.Init(a)
	desc.Init(b)
	desc.OnAppData(a, []byte("one"))
	desc.OnAppData(a, []byte("two"))
	desc.OnAppData(b, []byte("solo"))

	// Sequence counters are per instance: two sends from A, one from B.
	require.Len(t, hostA.sent, 2)
	assert.Equal(t, uint32(0), hostA.sent[0].Header.SeqNum)
	assert.Equal(t, uint32(1), hostA.sent[1].Header.SeqNum)
	require.Len(t, hostB.sent, 1)
	assert.Equal(t, uint32(0), hostB.sent[0].Header.SeqNum)

	desc.Destroy(a)
	desc.Destroy(b)
}

// panickingProtocol panics in every handler to exercise boundary suppression.
type panickingProtocol struct {
	protocol.Base
}

func (panickingProtocol) Init(protocol.SystemContext)                       { panic("init") }
func (panickingProtocol) OnPacket(protocol.SystemContext, transport.Packet) { panic("packet") }
func (panickingProtocol) OnTimer(protocol.SystemContext, uint32)            { panic("timer") }
func (panickingProtocol) OnAppData(protocol.SystemContext, []byte)          { panic("app") }

func TestExportSwallowsPanics(t *testing.T) {
	desc := Export("panicky", func() protocol.TransportProtocol { return panickingProtocol{} })

	h := desc.Create(HostTable{})
	require.NotEqual(t, Handle(0), h)

	assert.NotPanics(t, func() {
		desc.Init(h)
		desc.OnAppData(h, []byte("x"))
		desc.OnPacket(h, 0, 0, 0, 0, 0, nil)
		desc.OnTimer(h, 0)
	})
	desc.Destroy(h)
}

func TestExportNilHostTable(t *testing.T) {
	proto := &countingProtocol{}
	desc := Export("test", func() protocol.TransportProtocol { return proto })

	// A completely empty host table: every service is a no-op, Now is 0.
	h := desc.Create(HostTable{})
	assert.NotPanics(t, func() {
		desc.Init(h)
		desc.OnAppData(h, []byte("x"))
	})
	desc.Destroy(h)
}
