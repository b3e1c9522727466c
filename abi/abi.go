// Package abi defines the stable entry-point boundary between a host runtime
// and a loaded protocol module.
//
// The boundary carries only fixed-width integers, byte buffers and strings:
// no language-specific container types cross it, so a module can be authored
// in any language capable of exporting a C-compatible function table. Byte
// buffers are copied at the boundary in both directions; no memory is shared
// by reference between host and module.
//
// A module presents itself as a [Descriptor]: an explicit record of entry
// points produced once at load time. The host owns instance lifetime through
// opaque [Handle] tokens; a handle is created by Create, driven through Init
// and the event entry points, and released by exactly one Destroy.
package abi

import (
	"errors"
	"fmt"
)

// ABIVersion is the version of the entry-point contract implemented by this
// package. Hosts negotiate it at load time; a width or field-order mismatch
// between host and module is otherwise undetectable.
const ABIVersion uint32 = 1

var (
	// ErrVersionMismatch indicates the host and module disagree on the ABI
	// version.
	ErrVersionMismatch = errors.New("abi version mismatch")

	// ErrIncompleteDescriptor indicates a descriptor is missing one or more
	// entry points.
	ErrIncompleteDescriptor = errors.New("incomplete module descriptor")
)

// Handle is an opaque token identifying one live protocol instance. Handles
// are plain integers scoped to the descriptor that issued them, never
// pointers; the host must not use a handle after destroying it. Zero is
// never a valid handle.
type Handle uint64

// HostTable is the module-to-host direction of the boundary: the fixed set
// of services a module instance may call. The table is bound to an instance
// at Create time and remains valid until the instance is destroyed.
//
// All calls are one-way and fire-and-forget except Now. Nil entries are
// treated as no-ops (Now returns 0), so a minimal host only wires what it
// observes.
type HostTable struct {
	// SendPacket hands a packet to the host as flattened header fields plus
	// a payload buffer valid only for the duration of the call.
	SendPacket func(seq, ack uint32, flags uint8, window, checksum uint16, payload []byte)

	// StartTimer requests a timer callback no earlier than delayMS later.
	StartTimer func(delayMS uint64, timerID uint32)

	// CancelTimer cancels a pending timer, best effort.
	CancelTimer func(timerID uint32)

	// DeliverData passes application payload upward, out of the transport
	// layer. The buffer is valid only for the duration of the call.
	DeliverData func(data []byte)

	// Log emits an unstructured message on the host's log.
	Log func(message string)

	// Now returns the host's monotonic clock in milliseconds.
	Now func() uint64

	// RecordMetric records a named sample.
	RecordMetric func(name string, value float64)
}

// Descriptor is the host-to-module direction of the boundary: the
// name-and-signature-stable set of entry points the host uses to
// instantiate, drive and destroy module instances.
//
// A descriptor is produced once when the module is loaded. There is no
// implicit global registration; hosts hold descriptors explicitly.
type Descriptor struct {
	// Name identifies the module implementation, for logs and registries.
	Name string

	// Version is the ABI version the module was built against.
	Version uint32

	// Create instantiates the module with the given host services and
	// returns an opaque handle, or zero on failure.
	Create func(host HostTable) Handle

	// Destroy releases all module-owned resources for the handle. The
	// handle is invalid afterward. Destroying an unknown handle is a
	// logged no-op.
	Destroy func(h Handle)

	// Init is called exactly once per instance, before any event entry
	// point.
	Init func(h Handle)

	// OnAppData submits application bytes to the instance for transmission.
	OnAppData func(h Handle, data []byte)

	// OnPacket delivers an inbound packet as flattened header fields plus
	// payload.
	OnPacket func(h Handle, seq, ack uint32, flags uint8, window, checksum uint16, payload []byte)

	// OnTimer notifies the instance that a timer expired.
	OnTimer func(h Handle, timerID uint32)
}

// Negotiate checks that a host built against hostVersion can drive a module
// implementing this package's ABI. Performed once at module load time.
func Negotiate(hostVersion uint32) error {
	if hostVersion != ABIVersion {
		return fmt.Errorf("%w: host %d, module %d", ErrVersionMismatch, hostVersion, ABIVersion)
	}
	return nil
}

// Validate checks that the descriptor carries every entry point and a
// compatible ABI version. Hosts call this once after load, before Create.
func (d *Descriptor) Validate() error {
	if err := Negotiate(d.Version); err != nil {
		return fmt.Errorf("module %q: %w", d.Name, err)
	}
	if d.Create == nil || d.Destroy == nil || d.Init == nil ||
		d.OnAppData == nil || d.OnPacket == nil || d.OnTimer == nil {
		return fmt.Errorf("%w: module %q", ErrIncompleteDescriptor, d.Name)
	}
	return nil
}
