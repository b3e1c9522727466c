// Package tcplab implements a deterministic harness for developing and
// testing transport protocol modules.
//
// A protocol module is a sender/receiver pair that talks to its host only
// through a narrow entry-point table. The harness links two modules with a
// simulated lossy channel, drives them on a virtual clock, and reports what
// was delivered, retransmitted and measured.
//
// Example:
//
//	options := tcplab.NewOptions()
//	options.Sender = "rdt2"
//	options.Receiver = "rdt2"
//	options.Config.LossRate = 0.1
//	options.Sends = []tcplab.AppSend{
//	    {AtMS: 0, Data: []byte("hello")},
//	    {AtMS: 10, Data: []byte("world")},
//	}
//
//	lab, err := tcplab.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := lab.Run()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("delivered %d payloads in %dms\n",
//	    len(result.Report.DeliveredData), result.Report.DurationMS)
package tcplab

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tcplab/abi"
	"github.com/opd-ai/tcplab/builtin"
	"github.com/opd-ai/tcplab/sim"
)

// ErrNoWorkload indicates a lab configured with neither scheduled sends nor
// a scenario, so a run would do nothing.
var ErrNoWorkload = errors.New("no workload configured")

// AppSend is one application payload scheduled for the sender node.
type AppSend struct {
	AtMS uint64
	Data []byte
}

// Options contains configuration for creating a Lab.
//
// Sender and Receiver name builtin protocols ("rdt1", "rdt2", "secure").
// SenderModule and ReceiverModule override the name lookup with externally
// built descriptors, which is how non-builtin modules are plugged in.
//
// If ScenarioPath is set, the scenario file supplies the channel
// configuration, the workload and the assertions; Config and Sends are
// ignored.
type Options struct {
	Sender   string
	Receiver string

	SenderModule   *abi.Descriptor
	ReceiverModule *abi.Descriptor

	Config sim.Config
	Sends  []AppSend

	ScenarioPath string
}

// NewOptions creates an Options with sensible defaults: the rdt1 pair on
// the default channel.
func NewOptions() *Options {
	return &Options{
		Sender:   "rdt1",
		Receiver: "rdt1",
		Config:   sim.DefaultConfig(),
	}
}

// Result is the outcome of one lab run.
type Result struct {
	Report *sim.Report

	// Assertions holds scenario assertion outcomes. Empty for runs driven
	// by Options.Sends.
	Assertions []sim.AssertionResult
}

// Passed reports whether every scenario assertion held. Runs without
// assertions pass trivially.
func (r *Result) Passed() bool {
	return sim.Passed(r.Assertions)
}

// Lab holds a validated module pair and workload, ready to run.
type Lab struct {
	senderDesc   *abi.Descriptor
	receiverDesc *abi.Descriptor
	config       sim.Config
	sends        []AppSend
	scenario     *sim.Scenario
	log          *logrus.Entry
}

// New creates a Lab from the given options. It resolves and validates both
// module descriptors and loads the scenario file if one is configured.
func New(options *Options) (*Lab, error) {
	if options == nil {
		options = NewOptions()
	}

	senderDesc, err := resolveModule(options.SenderModule, options.Sender, builtin.RoleSender)
	if err != nil {
		return nil, err
	}
	receiverDesc, err := resolveModule(options.ReceiverModule, options.Receiver, builtin.RoleReceiver)
	if err != nil {
		return nil, err
	}

	lab := &Lab{
		senderDesc:   senderDesc,
		receiverDesc: receiverDesc,
		config:       options.Config,
		sends:        options.Sends,
		log: logrus.WithFields(logrus.Fields{
			"component": "lab",
			"sender":    senderDesc.Name,
			"receiver":  receiverDesc.Name,
		}),
	}

	if options.ScenarioPath != "" {
		scenario, err := sim.LoadScenario(options.ScenarioPath)
		if err != nil {
			return nil, err
		}
		lab.scenario = scenario
		return lab, nil
	}

	if err := options.Config.Validate(); err != nil {
		return nil, err
	}
	if len(options.Sends) == 0 {
		return nil, ErrNoWorkload
	}
	return lab, nil
}

// resolveModule prefers an explicit descriptor over a builtin name, and
// validates whichever was chosen.
func resolveModule(desc *abi.Descriptor, name string, role builtin.Role) (*abi.Descriptor, error) {
	if desc == nil {
		var err error
		desc, err = builtin.Lookup(name, role)
		if err != nil {
			return nil, err
		}
	}
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%s module: %w", role, err)
	}
	return desc, nil
}

// Run executes the configured workload once and returns the run's report.
// Each call creates fresh module instances, so a Lab can run repeatedly.
func (l *Lab) Run() (*Result, error) {
	if l.scenario != nil {
		l.log.WithField("scenario", l.scenario.Name).Info("Running scenario")
		report, assertions, err := l.scenario.Run(l.senderDesc, l.receiverDesc)
		if err != nil {
			return nil, err
		}
		return &Result{Report: report, Assertions: assertions}, nil
	}

	engine, err := sim.New(l.config, l.senderDesc, l.receiverDesc)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	for _, send := range l.sends {
		if err := engine.ScheduleAppSend(send.AtMS, send.Data); err != nil {
			return nil, err
		}
	}

	l.log.WithField("run_id", engine.RunID()).Info("Running simulation")
	engine.Run()
	return &Result{Report: engine.Report()}, nil
}
