package builtin

import (
	"errors"
	"testing"

	"github.com/opd-ai/tcplab/abi"
)

// TestLookupKnownNames verifies every registered name resolves to a valid
// descriptor for both roles.
func TestLookupKnownNames(t *testing.T) {
	for _, name := range Names() {
		for _, role := range []Role{RoleSender, RoleReceiver} {
			desc, err := Lookup(name, role)
			if err != nil {
				t.Fatalf("Lookup(%q, %v): %v", name, role, err)
			}
			if err := desc.Validate(); err != nil {
				t.Errorf("descriptor for %q invalid: %v", name, err)
			}
		}
	}
}

// TestLookupUnknownName verifies the sentinel error.
func TestLookupUnknownName(t *testing.T) {
	_, err := Lookup("gbn", RoleSender)
	if !errors.Is(err, ErrUnknownProtocol) {
		t.Errorf("got %v, want ErrUnknownProtocol", err)
	}
}

// TestLookupDescriptorsDriveInstances smoke-tests a looked-up pair over the
// ABI: rdt1 app data on the sender comes out of the receiver verbatim.
func TestLookupDescriptorsDriveInstances(t *testing.T) {
	senderDesc, err := Lookup("rdt1", RoleSender)
	if err != nil {
		t.Fatal(err)
	}
	receiverDesc, err := Lookup("rdt1", RoleReceiver)
	if err != nil {
		t.Fatal(err)
	}

	var delivered [][]byte
	receiverHandle := receiverDesc.Create(abi.HostTable{
		DeliverData: func(data []byte) { delivered = append(delivered, data) },
	})

	senderHandle := senderDesc.Create(abi.HostTable{
		SendPacket: func(seq, ack uint32, flags uint8, window, chk uint16, payload []byte) {
			receiverDesc.OnPacket(receiverHandle, seq, ack, flags, window, chk, payload)
		},
	})

	senderDesc.Init(senderHandle)
	receiverDesc.Init(receiverHandle)

	senderDesc.OnAppData(senderHandle, []byte("through the abi"))

	if len(delivered) != 1 || string(delivered[0]) != "through the abi" {
		t.Fatalf("delivered = %q", delivered)
	}

	senderDesc.Destroy(senderHandle)
	receiverDesc.Destroy(receiverHandle)
}
