package abi

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tcplab/protocol"
	"github.com/opd-ai/tcplab/transport"
)

// instance pairs a live protocol implementation with the host services bound
// to it at Create time.
type instance struct {
	proto protocol.TransportProtocol
	ctx   *hostContext
}

// exportRegistry is an arena-style map from handle to live instance, owned
// by one descriptor. Keeping the registry per descriptor avoids hidden
// process-wide state; two loaded modules never share a handle space.
type exportRegistry struct {
	mu        sync.RWMutex
	instances map[Handle]*instance
	next      Handle
}

func (r *exportRegistry) add(inst *instance) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h := r.next
	r.instances[h] = inst
	return h
}

func (r *exportRegistry) lookup(h Handle) (*instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[h]
	return inst, ok
}

func (r *exportRegistry) remove(h Handle) (*instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[h]
	if ok {
		delete(r.instances, h)
	}
	return inst, ok
}

// Export wraps a TransportProtocol factory behind the entry-point ABI,
// producing the explicit descriptor record a host loads.
//
// Each Create call runs the factory once and binds the provided HostTable to
// the new instance for its lifetime. Payload buffers are copied as they
// cross the boundary. A handler panic is swallowed and logged rather than
// propagated to the host; there is no host-visible error channel from
// handlers.
func Export(name string, factory func() protocol.TransportProtocol) *Descriptor {
	reg := &exportRegistry{instances: make(map[Handle]*instance)}

	guard := func(h Handle, entry string, fn func(*instance)) {
		inst, ok := reg.lookup(h)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": entry,
				"module":   name,
				"handle":   h,
			}).Warn("Entry point called on unknown or destroyed handle")
			return
		}
		defer func() {
			if rec := recover(); rec != nil {
				logrus.WithFields(logrus.Fields{
					"function": entry,
					"module":   name,
					"handle":   h,
					"panic":    rec,
				}).Error("Module handler panicked; suppressed at the boundary")
			}
		}()
		fn(inst)
	}

	return &Descriptor{
		Name:    name,
		Version: ABIVersion,

		Create: func(host HostTable) Handle {
			proto := factory()
			if proto == nil {
				logrus.WithFields(logrus.Fields{
					"function": "Create",
					"module":   name,
				}).Error("Module factory returned nil")
				return 0
			}
			return reg.add(&instance{proto: proto, ctx: &hostContext{host: host}})
		},

		Destroy: func(h Handle) {
			if _, ok := reg.remove(h); !ok {
				logrus.WithFields(logrus.Fields{
					"function": "Destroy",
					"module":   name,
					"handle":   h,
				}).Warn("Destroy called on unknown or destroyed handle")
			}
		},

		Init: func(h Handle) {
			guard(h, "Init", func(inst *instance) {
				inst.proto.Init(inst.ctx)
			})
		},

		OnAppData: func(h Handle, data []byte) {
			buf := cloneBytes(data)
			guard(h, "OnAppData", func(inst *instance) {
				inst.proto.OnAppData(inst.ctx, buf)
			})
		},

		OnPacket: func(h Handle, seq, ack uint32, flags uint8, window, checksum uint16, payload []byte) {
			pkt := transport.Packet{
				Header: transport.TCPHeader{
					SeqNum:     seq,
					AckNum:     ack,
					Flags:      flags,
					WindowSize: window,
					Checksum:   checksum,
				},
				Payload: cloneBytes(payload),
			}
			guard(h, "OnPacket", func(inst *instance) {
				inst.proto.OnPacket(inst.ctx, pkt)
			})
		},

		OnTimer: func(h Handle, timerID uint32) {
			guard(h, "OnTimer", func(inst *instance) {
				inst.proto.OnTimer(inst.ctx, timerID)
			})
		},
	}
}

// hostContext adapts a HostTable to the protocol.SystemContext interface,
// flattening packets to scalar fields and copying buffers on the way out.
type hostContext struct {
	host HostTable
}

func (c *hostContext) SendPacket(pkt transport.Packet) {
	if c.host.SendPacket == nil {
		return
	}
	h := pkt.Header
	c.host.SendPacket(h.SeqNum, h.AckNum, h.Flags, h.WindowSize, h.Checksum, cloneBytes(pkt.Payload))
}

func (c *hostContext) StartTimer(delayMS uint64, timerID uint32) {
	if c.host.StartTimer != nil {
		c.host.StartTimer(delayMS, timerID)
	}
}

func (c *hostContext) CancelTimer(timerID uint32) {
	if c.host.CancelTimer != nil {
		c.host.CancelTimer(timerID)
	}
}

func (c *hostContext) DeliverData(data []byte) {
	if c.host.DeliverData != nil {
		c.host.DeliverData(cloneBytes(data))
	}
}

func (c *hostContext) Log(message string) {
	if c.host.Log != nil {
		c.host.Log(message)
	}
}

func (c *hostContext) Now() uint64 {
	if c.host.Now == nil {
		return 0
	}
	return c.host.Now()
}

func (c *hostContext) RecordMetric(name string, value float64) {
	if c.host.RecordMetric != nil {
		c.host.RecordMetric(name, value)
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
