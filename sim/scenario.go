package sim

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/opd-ai/tcplab/abi"
	"github.com/opd-ai/tcplab/limits"
)

// Scenario action types.
const (
	ActionAppSend         = "app_send"
	ActionDropSenderSeq   = "drop_sender_seq"
	ActionDropReceiverAck = "drop_receiver_ack"
)

// Scenario assertion types.
const (
	AssertDataDelivered     = "data_delivered"
	AssertSenderPacketCount = "sender_packet_count"
	AssertSenderWindowMax   = "sender_window_max"
	AssertMaxDuration       = "max_duration"
)

// ErrUnknownScenarioEntry indicates an action or assertion type the runner
// does not recognize.
var ErrUnknownScenarioEntry = errors.New("unknown scenario entry")

// Scenario is a declarative test case: channel overrides, scheduled inputs
// and faults, and postconditions on the run's report.
type Scenario struct {
	Name        string         `toml:"name"`
	Description string         `toml:"description"`
	Config      ConfigOverride `toml:"config"`
	Actions     []Action       `toml:"actions"`
	Assertions  []Assertion    `toml:"assertions"`
}

// ConfigOverride carries optional channel settings layered over
// DefaultConfig. Unset fields keep the default.
type ConfigOverride struct {
	LossRate     *float64 `toml:"loss_rate"`
	CorruptRate  *float64 `toml:"corrupt_rate"`
	MinLatencyMS *uint64  `toml:"min_latency_ms"`
	MaxLatencyMS *uint64  `toml:"max_latency_ms"`
	Seed         *int64   `toml:"seed"`
}

// Apply layers the override onto a config.
func (o ConfigOverride) Apply(c *Config) {
	if o.LossRate != nil {
		c.LossRate = *o.LossRate
	}
	if o.CorruptRate != nil {
		c.CorruptRate = *o.CorruptRate
	}
	if o.MinLatencyMS != nil {
		c.MinLatencyMS = *o.MinLatencyMS
	}
	if o.MaxLatencyMS != nil {
		c.MaxLatencyMS = *o.MaxLatencyMS
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
}

// Action is one scheduled input or deterministic fault. Which fields apply
// depends on Type.
type Action struct {
	Type string `toml:"type"`

	// app_send
	AtMS uint64 `toml:"at_ms"`
	Data string `toml:"data"`

	// drop_sender_seq / drop_receiver_ack
	Seq uint32 `toml:"seq"`
	Ack uint32 `toml:"ack"`
}

// Assertion is one postcondition evaluated against the run's report.
type Assertion struct {
	Type string `toml:"type"`

	// data_delivered
	Data string `toml:"data"`

	// sender_packet_count / sender_window_max: Max of 0 means unbounded.
	Min uint32 `toml:"min"`
	Max uint32 `toml:"max"`

	// max_duration
	MS uint64 `toml:"ms"`
}

// AssertionResult is the evaluated outcome of one assertion.
type AssertionResult struct {
	Assertion Assertion
	Passed    bool
	Detail    string
}

// LoadScenario reads and validates a TOML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	var s Scenario
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario %q: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", path, err)
	}
	return &s, nil
}

// ParseScenario decodes a TOML scenario from memory.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if _, err := toml.Decode(string(data), &s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks entry types and total scheduled data size.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario name is required")
	}

	total := 0
	for _, a := range s.Actions {
		switch a.Type {
		case ActionAppSend:
			total += len(a.Data)
		case ActionDropSenderSeq, ActionDropReceiverAck:
		default:
			return fmt.Errorf("%w: action type %q", ErrUnknownScenarioEntry, a.Type)
		}
	}
	if total > limits.MaxScenarioData {
		return fmt.Errorf("%w: scenario schedules %d bytes", limits.ErrPayloadTooLarge, total)
	}

	for _, a := range s.Assertions {
		switch a.Type {
		case AssertDataDelivered, AssertSenderPacketCount, AssertSenderWindowMax, AssertMaxDuration:
		default:
			return fmt.Errorf("%w: assertion type %q", ErrUnknownScenarioEntry, a.Type)
		}
	}
	return nil
}

// EffectiveConfig is DefaultConfig with the scenario's overrides applied.
func (s *Scenario) EffectiveConfig() Config {
	config := DefaultConfig()
	s.Config.Apply(&config)
	return config
}

// Run executes the scenario against a sender/receiver module pair and
// evaluates its assertions. The engine is created, driven and closed here;
// the returned report is the run's final snapshot.
func (s *Scenario) Run(senderDesc, receiverDesc *abi.Descriptor) (*Report, []AssertionResult, error) {
	engine, err := New(s.EffectiveConfig(), senderDesc, receiverDesc)
	if err != nil {
		return nil, nil, err
	}
	defer engine.Close()

	for _, a := range s.Actions {
		switch a.Type {
		case ActionAppSend:
			if err := engine.ScheduleAppSend(a.AtMS, []byte(a.Data)); err != nil {
				return nil, nil, err
			}
		case ActionDropSenderSeq:
			engine.DropNextSenderSeq(a.Seq)
		case ActionDropReceiverAck:
			engine.DropNextReceiverAck(a.Ack)
		}
	}

	engine.Run()
	report := engine.Report()

	results := make([]AssertionResult, 0, len(s.Assertions))
	for _, a := range s.Assertions {
		results = append(results, evaluateAssertion(a, report))
	}
	return report, results, nil
}

// Passed reports whether every assertion in results held.
func Passed(results []AssertionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func evaluateAssertion(a Assertion, report *Report) AssertionResult {
	result := AssertionResult{Assertion: a}

	switch a.Type {
	case AssertDataDelivered:
		want := []byte(a.Data)
		for _, got := range report.DeliveredData {
			if bytes.Equal(got, want) {
				result.Passed = true
				break
			}
		}
		if result.Passed {
			result.Detail = fmt.Sprintf("data %q delivered", a.Data)
		} else {
			result.Detail = fmt.Sprintf("data %q never delivered (%d deliveries)", a.Data, len(report.DeliveredData))
		}

	case AssertSenderPacketCount:
		count := report.SenderPacketCount
		result.Passed = count >= a.Min && (a.Max == 0 || count <= a.Max)
		result.Detail = fmt.Sprintf("sender sent %d packets (want min %d, max %d)", count, a.Min, a.Max)

	case AssertSenderWindowMax:
		var maxWindow uint16
		for _, w := range report.SenderWindowSizes {
			if w > maxWindow {
				maxWindow = w
			}
		}
		result.Passed = uint32(maxWindow) >= a.Min && (a.Max == 0 || uint32(maxWindow) <= a.Max)
		result.Detail = fmt.Sprintf("max reported window %d (want min %d, max %d)", maxWindow, a.Min, a.Max)

	case AssertMaxDuration:
		result.Passed = report.DurationMS <= a.MS
		result.Detail = fmt.Sprintf("run took %dms (limit %dms)", report.DurationMS, a.MS)
	}

	return result
}
