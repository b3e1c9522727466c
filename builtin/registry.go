package builtin

import (
	"errors"
	"fmt"

	"github.com/opd-ai/tcplab/abi"
	"github.com/opd-ai/tcplab/protocol"
	"github.com/opd-ai/tcplab/securechan"
)

// ErrUnknownProtocol indicates a name with no registered implementation.
var ErrUnknownProtocol = errors.New("unknown protocol")

// Role selects which half of a protocol pair a descriptor drives.
type Role uint8

const (
	// RoleSender is the node application data is submitted to.
	RoleSender Role = iota
	// RoleReceiver is the node that delivers data upward.
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// Lookup resolves a built-in protocol implementation by name and role,
// returning a freshly exported module descriptor. Each call produces an
// independent descriptor with its own handle space.
//
// Known names: "rdt1", "rdt2", "secure".
func Lookup(name string, role Role) (*abi.Descriptor, error) {
	var factory func() protocol.TransportProtocol

	switch name {
	case "rdt1":
		if role == RoleSender {
			factory = func() protocol.TransportProtocol { return &Rdt1Sender{} }
		} else {
			factory = func() protocol.TransportProtocol { return &Rdt1Receiver{} }
		}
	case "rdt2":
		if role == RoleSender {
			factory = func() protocol.TransportProtocol { return &Rdt2Sender{} }
		} else {
			factory = func() protocol.TransportProtocol { return &Rdt2Receiver{} }
		}
	case "secure":
		if role == RoleSender {
			factory = func() protocol.TransportProtocol { return securechan.NewSender() }
		} else {
			factory = func() protocol.TransportProtocol { return securechan.NewReceiver() }
		}
	default:
		return nil, fmt.Errorf("%w: %q (try rdt1, rdt2 or secure)", ErrUnknownProtocol, name)
	}

	return abi.Export(name+"-"+role.String(), factory), nil
}

// Names lists the registered built-in protocol names.
func Names() []string {
	return []string{"rdt1", "rdt2", "secure"}
}
