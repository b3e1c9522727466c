package builtin

import (
	"github.com/opd-ai/tcplab/transport"
)

// mockContext implements protocol.SystemContext and records every host
// service call for assertions.
type mockContext struct {
	sent      []transport.Packet
	delivered [][]byte
	logs      []string
	started   []timerStart
	cancelled []uint32
	metrics   map[string]float64
	nowMS     uint64
}

type timerStart struct {
	delayMS uint64
	timerID uint32
}

func newMockContext() *mockContext {
	return &mockContext{metrics: make(map[string]float64)}
}

func (m *mockContext) SendPacket(pkt transport.Packet) {
	m.sent = append(m.sent, pkt.Clone())
}

func (m *mockContext) StartTimer(delayMS uint64, timerID uint32) {
	m.started = append(m.started, timerStart{delayMS: delayMS, timerID: timerID})
}

func (m *mockContext) CancelTimer(timerID uint32) {
	m.cancelled = append(m.cancelled, timerID)
}

func (m *mockContext) DeliverData(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	m.delivered = append(m.delivered, buf)
}

func (m *mockContext) Log(message string) {
	m.logs = append(m.logs, message)
}

func (m *mockContext) Now() uint64 {
	return m.nowMS
}

func (m *mockContext) RecordMetric(name string, value float64) {
	m.metrics[name] += value
}
