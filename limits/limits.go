// Package limits provides centralized payload size limits for the harness.
// This ensures consistent validation across the host, the ABI boundary and
// the simulation engine.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxPayload is the largest payload the host accepts in a single packet
	// or application submission (64 KiB). The core leaves payload length
	// unbounded; this is host policy.
	MaxPayload = 64 * 1024

	// MaxScenarioData is the maximum total application data a scenario file
	// may schedule. This prevents runaway event queues from a bad scenario.
	MaxScenarioData = 1024 * 1024

	// MaxLogMessage is the longest log message forwarded from a module.
	// Longer messages are truncated, never rejected.
	MaxLogMessage = 4096
)

var (
	// ErrPayloadEmpty indicates an empty payload was provided where data
	// was required.
	ErrPayloadEmpty = errors.New("empty payload")

	// ErrPayloadTooLarge indicates a payload exceeds the host limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidatePayloadSize validates a payload against the specified maximum.
// Returns an error with context including the actual and maximum sizes.
func ValidatePayloadSize(payload []byte, maxSize int) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), maxSize)
	}
	return nil
}

// ValidatePacketPayload validates a packet payload against MaxPayload.
// Empty payloads are allowed here; pure ACK packets carry no data.
func ValidatePacketPayload(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: packet payload %d exceeds limit %d", ErrPayloadTooLarge, len(payload), MaxPayload)
	}
	return nil
}

// TruncateLogMessage clamps a module log message to MaxLogMessage bytes.
func TruncateLogMessage(msg string) string {
	if len(msg) <= MaxLogMessage {
		return msg
	}
	return msg[:MaxLogMessage]
}
