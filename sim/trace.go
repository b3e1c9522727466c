package sim

// LinkEvent is a compact textual summary of one channel-level occurrence
// (send, drop, corruption, delivery) for reports and visualization.
type LinkEvent struct {
	TimeMS      uint64 `json:"time_ms"`
	Description string `json:"description"`
}

// MetricSample is one point of a named time series recorded through
// RecordMetric.
type MetricSample struct {
	TimeMS uint64  `json:"time_ms"`
	Value  float64 `json:"value"`
}

// Report is a serializable snapshot of a finished (or in-progress) run.
type Report struct {
	// RunID uniquely identifies this simulation run.
	RunID string `json:"run_id"`

	// Config is the channel configuration the run used.
	Config Config `json:"config"`

	// DurationMS is the virtual time of the last processed event.
	DurationMS uint64 `json:"duration_ms"`

	// DeliveredData holds every payload passed upward by the receiver node,
	// in delivery order.
	DeliveredData [][]byte `json:"delivered_data"`

	// SenderPacketCount is the total number of packets the sender node
	// handed to the channel.
	SenderPacketCount uint32 `json:"sender_packet_count"`

	// SenderWindowSizes records the nonzero window sizes the sender
	// reported in outgoing headers, in send order.
	SenderWindowSizes []uint16 `json:"sender_window_sizes"`

	// Metrics holds every named time series recorded by either node.
	Metrics map[string][]MetricSample `json:"metrics"`

	// LinkEvents is the channel timeline.
	LinkEvents []LinkEvent `json:"link_events"`
}
