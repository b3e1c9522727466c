package sim

import (
	"container/heap"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tcplab/abi"
	"github.com/opd-ai/tcplab/limits"
	"github.com/opd-ai/tcplab/transport"
)

// NodeID identifies one of the two simulated endpoints.
type NodeID uint8

const (
	// NodeSender receives application data submissions.
	NodeSender NodeID = iota
	// NodeReceiver is expected to deliver data upward.
	NodeReceiver
)

// String returns the node name for logs and link events.
func (n NodeID) String() string {
	if n == NodeSender {
		return "sender"
	}
	return "receiver"
}

// Peer returns the opposite endpoint.
func (n NodeID) Peer() NodeID {
	if n == NodeSender {
		return NodeReceiver
	}
	return NodeSender
}

type eventKind uint8

const (
	eventPacketArrival eventKind = iota
	eventTimerExpiry
	eventAppSend
)

// event is one scheduled occurrence. Events at equal times fire in insertion
// order via the seq tiebreaker.
type event struct {
	timeMS     uint64
	seq        uint64
	kind       eventKind
	node       NodeID
	packet     transport.Packet
	timerID    uint32
	generation uint64
	data       []byte
}

// eventQueue is a min-heap on (timeMS, seq).
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].timeMS != q[j].timeMS {
		return q[i].timeMS < q[j].timeMS
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x interface{}) { *q = append(*q, x.(*event)) }
func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// actionBuffer collects the host-service calls a handler makes so they are
// applied after the handler returns. A handler therefore observes a
// consistent snapshot: its own sends cannot re-enter it mid-call.
type actionBuffer struct {
	outgoing    []transport.Packet
	timerStarts []timerRequest
	timerStops  []uint32
	logs        []string
	delivered   [][]byte
	metrics     []metricRequest
}

type timerRequest struct {
	delayMS uint64
	timerID uint32
}

type metricRequest struct {
	name  string
	value float64
}

func (b *actionBuffer) reset() {
	b.outgoing = b.outgoing[:0]
	b.timerStarts = b.timerStarts[:0]
	b.timerStops = b.timerStops[:0]
	b.logs = b.logs[:0]
	b.delivered = b.delivered[:0]
	b.metrics = b.metrics[:0]
}

// node is one endpoint: a module descriptor, its live handle and the action
// buffer its host table writes into.
type node struct {
	id     NodeID
	desc   *abi.Descriptor
	handle abi.Handle
	buffer actionBuffer
}

type timerKey struct {
	node    NodeID
	timerID uint32
}

// Engine is the simulation host. It is not safe for concurrent use; all
// methods must be called from one goroutine, which is also how the
// per-instance serialization guarantee of the contract is met.
type Engine struct {
	config Config
	clock  VirtualClock
	rng    *rand.Rand
	queue  eventQueue
	nextID uint64

	sender   node
	receiver node
	closed   bool

	runID             string
	delivered         [][]byte
	senderPacketCount uint32
	senderWindowSizes []uint16
	metrics           map[string][]MetricSample
	linkEvents        []LinkEvent

	// Timer generations implement the cancellation policy: starting or
	// cancelling a timer bumps the generation for its (node, id) key, and an
	// expiry event only fires if its recorded generation is still current.
	// Cancellation is thus guaranteed for timers not yet dequeued.
	timerGens map[timerKey]uint64

	dropSenderSeqOnce   []uint32
	dropReceiverAckOnce []uint32

	log *logrus.Entry
}

// New creates an engine hosting one sender and one receiver module. Both
// descriptors are validated and version-negotiated, then one instance of
// each is created with a host table bound to its node.
func New(config Config, senderDesc, receiverDesc *abi.Descriptor) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.NewString()
	e := &Engine{
		config:    config,
		rng:       rand.New(rand.NewSource(config.Seed)),
		runID:     runID,
		metrics:   make(map[string][]MetricSample),
		timerGens: make(map[timerKey]uint64),
		log: logrus.WithFields(logrus.Fields{
			"component": "sim.Engine",
			"run_id":    runID,
		}),
	}

	for _, setup := range []struct {
		node *node
		id   NodeID
		desc *abi.Descriptor
	}{
		{&e.sender, NodeSender, senderDesc},
		{&e.receiver, NodeReceiver, receiverDesc},
	} {
		if err := setup.desc.Validate(); err != nil {
			return nil, err
		}
		setup.node.id = setup.id
		setup.node.desc = setup.desc
		setup.node.handle = setup.desc.Create(e.hostTable(setup.node))
		if setup.node.handle == 0 {
			return nil, fmt.Errorf("module %q failed to create %s instance", setup.desc.Name, setup.id)
		}
	}

	return e, nil
}

// hostTable builds the ABI host services for one node. Calls buffer into
// the node until the current handler returns. Buffers are copied here: the
// contract only keeps them valid for the duration of the call, and the
// engine retains them in events and the delivery log.
func (e *Engine) hostTable(n *node) abi.HostTable {
	return abi.HostTable{
		SendPacket: func(seq, ack uint32, flags uint8, window, chk uint16, payload []byte) {
			n.buffer.outgoing = append(n.buffer.outgoing, transport.Packet{
				Header: transport.TCPHeader{
					SeqNum:     seq,
					AckNum:     ack,
					Flags:      flags,
					WindowSize: window,
					Checksum:   chk,
				},
				Payload: append([]byte(nil), payload...),
			})
		},
		StartTimer: func(delayMS uint64, timerID uint32) {
			n.buffer.timerStarts = append(n.buffer.timerStarts, timerRequest{delayMS: delayMS, timerID: timerID})
		},
		CancelTimer: func(timerID uint32) {
			n.buffer.timerStops = append(n.buffer.timerStops, timerID)
		},
		DeliverData: func(data []byte) {
			n.buffer.delivered = append(n.buffer.delivered, append([]byte(nil), data...))
		},
		Log: func(message string) {
			n.buffer.logs = append(n.buffer.logs, limits.TruncateLogMessage(message))
		},
		Now: e.clock.NowMS,
		RecordMetric: func(name string, value float64) {
			n.buffer.metrics = append(n.buffer.metrics, metricRequest{name: name, value: value})
		},
	}
}

// RunID returns the unique identifier of this run.
func (e *Engine) RunID() string { return e.runID }

// NowMS returns the current virtual time.
func (e *Engine) NowMS() uint64 { return e.clock.NowMS() }

// RemainingEvents returns the number of queued events.
func (e *Engine) RemainingEvents() int { return len(e.queue) }

// ScheduleAppSend schedules application data to be submitted to the sender
// node at the given virtual time.
func (e *Engine) ScheduleAppSend(timeMS uint64, data []byte) error {
	if err := limits.ValidatePayloadSize(data, limits.MaxPayload); err != nil {
		return fmt.Errorf("app send at %dms: %w", timeMS, err)
	}
	e.push(&event{timeMS: timeMS, kind: eventAppSend, node: NodeSender, data: data})
	return nil
}

// DropNextSenderSeq registers a deterministic fault: the first packet the
// sender emits with this sequence number is dropped.
func (e *Engine) DropNextSenderSeq(seq uint32) {
	e.dropSenderSeqOnce = append(e.dropSenderSeqOnce, seq)
}

// DropNextReceiverAck registers a deterministic fault: the first ACK the
// receiver emits with this acknowledgment number is dropped.
func (e *Engine) DropNextReceiverAck(ack uint32) {
	e.dropReceiverAckOnce = append(e.dropReceiverAckOnce, ack)
}

func (e *Engine) push(ev *event) {
	ev.seq = e.nextID
	e.nextID++
	heap.Push(&e.queue, ev)
}

// Init calls each module's init entry point, before any event. Safe to call
// once; the facade and Run handle this.
func (e *Engine) Init() {
	e.dispatch(&e.sender, func(n *node) { n.desc.Init(n.handle) })
	e.dispatch(&e.receiver, func(n *node) { n.desc.Init(n.handle) })
}

// Step processes the next queued event. It returns false when the queue is
// empty.
func (e *Engine) Step() bool {
	if len(e.queue) == 0 {
		return false
	}
	ev := heap.Pop(&e.queue).(*event)
	e.clock.advance(ev.timeMS)

	switch ev.kind {
	case eventPacketArrival:
		n := e.nodeFor(ev.node)
		e.dispatch(n, func(n *node) {
			h := ev.packet.Header
			n.desc.OnPacket(n.handle, h.SeqNum, h.AckNum, h.Flags, h.WindowSize, h.Checksum, ev.packet.Payload)
		})

	case eventTimerExpiry:
		key := timerKey{node: ev.node, timerID: ev.timerID}
		if current, ok := e.timerGens[key]; !ok || current != ev.generation {
			e.log.WithFields(logrus.Fields{
				"node":     ev.node.String(),
				"timer_id": ev.timerID,
			}).Debug("Skipping cancelled or replaced timer event")
			return true
		}
		n := e.nodeFor(ev.node)
		e.dispatch(n, func(n *node) { n.desc.OnTimer(n.handle, ev.timerID) })

	case eventAppSend:
		e.dispatch(&e.sender, func(n *node) { n.desc.OnAppData(n.handle, ev.data) })
	}
	return true
}

// Run initializes both modules and drains the event queue.
func (e *Engine) Run() {
	e.Init()
	for e.Step() {
	}
}

// Close destroys both module instances. Idempotent; the handles are nulled
// so a destroyed instance can never be driven again.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.sender.desc.Destroy(e.sender.handle)
	e.receiver.desc.Destroy(e.receiver.handle)
	e.sender.handle = 0
	e.receiver.handle = 0
}

func (e *Engine) nodeFor(id NodeID) *node {
	if id == NodeSender {
		return &e.sender
	}
	return &e.receiver
}

// dispatch runs one entry-point call against a node, then applies the host
// actions it buffered.
func (e *Engine) dispatch(n *node, call func(*node)) {
	n.buffer.reset()
	call(n)
	e.applyActions(n)
}

func (e *Engine) applyActions(n *node) {
	now := e.clock.NowMS()

	for _, m := range n.buffer.metrics {
		e.metrics[m.name] = append(e.metrics[m.name], MetricSample{TimeMS: now, Value: m.value})
	}

	for _, msg := range n.buffer.logs {
		e.log.WithFields(logrus.Fields{
			"node":    n.id.String(),
			"time_ms": now,
		}).Info(msg)
	}

	for _, data := range n.buffer.delivered {
		e.linkEvents = append(e.linkEvents, LinkEvent{
			TimeMS:      now,
			Description: fmt.Sprintf("[%s] delivered %d bytes to application", n.id, len(data)),
		})
		e.delivered = append(e.delivered, data)
	}

	// Cancels and starts both bump the generation, invalidating any pending
	// expiry for the same key. A start then schedules under the new
	// generation, which is what gives StartTimer replace semantics.
	for _, timerID := range n.buffer.timerStops {
		e.timerGens[timerKey{node: n.id, timerID: timerID}]++
	}
	for _, req := range n.buffer.timerStarts {
		key := timerKey{node: n.id, timerID: req.timerID}
		e.timerGens[key]++
		e.push(&event{
			timeMS:     now + req.delayMS,
			kind:       eventTimerExpiry,
			node:       n.id,
			timerID:    req.timerID,
			generation: e.timerGens[key],
		})
	}

	for _, pkt := range n.buffer.outgoing {
		e.transmit(n.id, pkt)
	}
	n.buffer.reset()
}

// transmit pushes a packet through the simulated channel toward the peer.
func (e *Engine) transmit(from NodeID, pkt transport.Packet) {
	now := e.clock.NowMS()

	if from == NodeSender {
		e.senderPacketCount++
		if pkt.Header.WindowSize > 0 {
			e.senderWindowSizes = append(e.senderWindowSizes, pkt.Header.WindowSize)
		}
		if e.takeDrop(&e.dropSenderSeqOnce, pkt.Header.SeqNum) {
			e.recordLinkEvent(now, "[%s->%s] drop (deterministic seq) seq=%d", from, from.Peer(), pkt.Header.SeqNum)
			return
		}
	}

	if from == NodeReceiver && pkt.Header.IsACK() {
		if e.takeDrop(&e.dropReceiverAckOnce, pkt.Header.AckNum) {
			e.recordLinkEvent(now, "[%s->%s] drop (deterministic ack) ack=%d", from, from.Peer(), pkt.Header.AckNum)
			return
		}
	}

	if e.rng.Float64() < e.config.LossRate {
		e.recordLinkEvent(now, "[%s->%s] drop (random loss) seq=%d ack=%d",
			from, from.Peer(), pkt.Header.SeqNum, pkt.Header.AckNum)
		return
	}

	if e.rng.Float64() < e.config.CorruptRate {
		e.recordLinkEvent(now, "[%s->%s] corrupt seq=%d ack=%d",
			from, from.Peer(), pkt.Header.SeqNum, pkt.Header.AckNum)
		// Corruption model: invert the checksum so receivers that validate
		// it see a mismatch. Payload bytes are left intact.
		pkt.Header.Checksum = ^pkt.Header.Checksum
	}

	latency := e.config.MinLatencyMS
	if span := e.config.MaxLatencyMS - e.config.MinLatencyMS; span > 0 {
		latency += uint64(e.rng.Int63n(int64(span) + 1))
	}

	e.recordLinkEvent(now, "[%s->%s] send seq=%d ack=%d (latency=%dms)",
		from, from.Peer(), pkt.Header.SeqNum, pkt.Header.AckNum, latency)

	e.push(&event{
		timeMS: now + latency,
		kind:   eventPacketArrival,
		node:   from.Peer(),
		packet: pkt,
	})
}

// takeDrop removes seq from the one-shot drop list if present.
func (e *Engine) takeDrop(list *[]uint32, seq uint32) bool {
	for i, s := range *list {
		if s == seq {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) recordLinkEvent(timeMS uint64, format string, args ...interface{}) {
	desc := fmt.Sprintf(format, args...)
	e.linkEvents = append(e.linkEvents, LinkEvent{TimeMS: timeMS, Description: desc})
	e.log.WithField("time_ms", timeMS).Debug(desc)
}

// MetricSeries returns the recorded samples for a named metric, or nil.
func (e *Engine) MetricSeries(name string) []MetricSample {
	return e.metrics[name]
}

// DeliveredData returns every payload delivered upward so far, in order.
func (e *Engine) DeliveredData() [][]byte {
	return e.delivered
}

// Report snapshots the current simulation state.
func (e *Engine) Report() *Report {
	metrics := make(map[string][]MetricSample, len(e.metrics))
	for name, samples := range e.metrics {
		metrics[name] = append([]MetricSample(nil), samples...)
	}
	return &Report{
		RunID:             e.runID,
		Config:            e.config,
		DurationMS:        e.clock.NowMS(),
		DeliveredData:     append([][]byte(nil), e.delivered...),
		SenderPacketCount: e.senderPacketCount,
		SenderWindowSizes: append([]uint16(nil), e.senderWindowSizes...),
		Metrics:           metrics,
		LinkEvents:        append([]LinkEvent(nil), e.linkEvents...),
	}
}
