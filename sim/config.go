// Package sim implements the discrete-event simulation host that drives
// protocol module instances through the entry-point ABI.
//
// The engine owns scheduling: application submissions, packet arrivals and
// timer expiries are ordered on a virtual millisecond clock, and calls into
// any single module instance are strictly serialized. The simulated channel
// between the two nodes applies seeded random loss, corruption and latency,
// plus deterministic per-sequence fault injection for reproducible tests.
package sim

import "fmt"

// Config describes the simulated channel between the two nodes.
type Config struct {
	// LossRate is the probability in [0, 1] that a packet is dropped.
	LossRate float64 `toml:"loss_rate"`

	// CorruptRate is the probability in [0, 1] that a packet's checksum
	// field is flipped in transit.
	CorruptRate float64 `toml:"corrupt_rate"`

	// MinLatencyMS and MaxLatencyMS bound the uniform one-way delay.
	MinLatencyMS uint64 `toml:"min_latency_ms"`
	MaxLatencyMS uint64 `toml:"max_latency_ms"`

	// Seed drives the channel's random source; equal seeds reproduce runs
	// exactly.
	Seed int64 `toml:"seed"`
}

// DefaultConfig returns a lossless channel with 10-100 ms latency.
func DefaultConfig() Config {
	return Config{
		MinLatencyMS: 10,
		MaxLatencyMS: 100,
	}
}

// Validate checks rate ranges and latency ordering.
func (c Config) Validate() error {
	if c.LossRate < 0 || c.LossRate > 1 {
		return fmt.Errorf("loss_rate %v out of range [0, 1]", c.LossRate)
	}
	if c.CorruptRate < 0 || c.CorruptRate > 1 {
		return fmt.Errorf("corrupt_rate %v out of range [0, 1]", c.CorruptRate)
	}
	if c.MinLatencyMS > c.MaxLatencyMS {
		return fmt.Errorf("min_latency_ms %d exceeds max_latency_ms %d", c.MinLatencyMS, c.MaxLatencyMS)
	}
	return nil
}
