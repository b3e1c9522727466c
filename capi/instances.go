package main

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tcplab"
	"github.com/opd-ai/tcplab/abi"
	"github.com/opd-ai/tcplab/builtin"
)

// moduleInstance pairs a live module handle with the descriptor that owns it.
type moduleInstance struct {
	desc   *abi.Descriptor
	handle abi.Handle
}

// Global instance management for C API compatibility.
var (
	moduleInstances = make(map[uint64]*moduleInstance)
	nextModuleID    uint64 = 1
	moduleMutex     sync.RWMutex
)

// createInstance resolves a builtin protocol, instantiates it against the
// given host table and registers it. Returns 0 on failure.
func createInstance(name string, role builtin.Role, table abi.HostTable) uint64 {
	desc, err := builtin.Lookup(name, role)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "createInstance",
			"protocol": name,
			"error":    err.Error(),
		}).Error("Failed to resolve protocol module")
		return 0
	}

	handle := desc.Create(table)
	if handle == 0 {
		return 0
	}

	moduleMutex.Lock()
	defer moduleMutex.Unlock()
	id := nextModuleID
	nextModuleID++
	moduleInstances[id] = &moduleInstance{desc: desc, handle: handle}
	return id
}

func lookupInstance(id uint64) *moduleInstance {
	moduleMutex.RLock()
	defer moduleMutex.RUnlock()
	return moduleInstances[id]
}

// destroyInstance unregisters and destroys an instance. Unknown ids are
// ignored, so double destroy is harmless.
func destroyInstance(id uint64) {
	moduleMutex.Lock()
	inst, exists := moduleInstances[id]
	delete(moduleInstances, id)
	moduleMutex.Unlock()

	if exists {
		inst.desc.Destroy(inst.handle)
	}
}

// runScenarioFile runs a scenario on the named builtin pair. Empty names
// keep the default protocols. Returns 0 when every assertion passed, 1 when
// one failed and -1 on error.
func runScenarioFile(path, sender, receiver string) int {
	options := tcplab.NewOptions()
	options.ScenarioPath = path
	if sender != "" {
		options.Sender = sender
	}
	if receiver != "" {
		options.Receiver = receiver
	}

	lab, err := tcplab.New(options)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runScenarioFile",
			"path":     path,
			"error":    err.Error(),
		}).Error("Failed to create lab")
		return -1
	}

	result, err := lab.Run()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "runScenarioFile",
			"path":     path,
			"error":    err.Error(),
		}).Error("Scenario run failed")
		return -1
	}
	if !result.Passed() {
		return 1
	}
	return 0
}
