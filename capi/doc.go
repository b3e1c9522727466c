// Package main provides C API bindings for tcplab, enabling cross-language
// interoperability with C applications and other language bindings.
//
// # Overview
//
// The capi package exposes the protocol-module ABI as a flat C interface.
// A C host creates module instances from the builtin registry, supplies a
// table of host-service callbacks, and drives each instance through the
// same entry points the simulation engine uses: init, app data, packet
// arrival and timer expiry.
//
// # Build Instructions
//
// To build as a C shared library:
//
//	go build -buildmode=c-shared -o libtcplab.so ./capi/
//
// This generates:
//   - libtcplab.so: The shared library
//   - libtcplab.h: Auto-generated C header file with function declarations
//
// # C API Usage
//
//	#include "libtcplab.h"
//
//	void on_send(uint32_t seq, uint32_t ack, uint8_t flags, uint16_t window,
//	             uint16_t checksum, const uint8_t *payload, size_t len,
//	             void *user_data) {
//	    // hand the packet to your own channel
//	}
//
//	tcplab_host_table table = { .send_packet = on_send };
//	tcplab_handle sender = tcplab_module_create(
//	    (const uint8_t *)"rdt2", 4, 0, &table);
//	if (sender == 0) {
//	    fprintf(stderr, "failed to create module\n");
//	    return 1;
//	}
//
//	tcplab_module_init(sender);
//	tcplab_module_on_app_data(sender, (const uint8_t *)"hello", 5);
//
//	// Feed packets and timer expiries as your channel produces them:
//	tcplab_module_on_packet(sender, seq, ack, flags, window, checksum,
//	                        payload, payload_len);
//	tcplab_module_on_timer(sender, timer_id);
//
//	tcplab_module_destroy(sender);
//
// # Scenario Runner
//
// Whole scenario files can be run without driving instances manually:
//
//	int rc = tcplab_run_scenario(
//	    (const uint8_t *)"loss.toml", 9,
//	    (const uint8_t *)"rdt2", 4,
//	    (const uint8_t *)"rdt2", 4);
//	// rc: 0 = all assertions passed, 1 = assertion failed, -1 = error
//
// # Thread Safety
//
// Instance creation, lookup and destruction are guarded by a global lock.
// Calls into one instance must be serialized by the host; calls into
// different instances may run concurrently.
//
// # Memory Model
//
// Every buffer crossing the boundary is copied. Pointers passed to host
// callbacks are valid only for the duration of the callback; pointers
// passed into entry points need only stay valid for the call.
package main
