package main

/*
#include <stdint.h>
#include <stddef.h>

// Opaque instance handle. Zero is never a valid handle.
typedef uint64_t tcplab_handle;

// Host service callbacks. The module invokes these during entry-point
// calls; every pointer argument is only valid for the duration of the call.
typedef void (*tcplab_send_packet_cb)(uint32_t seq, uint32_t ack, uint8_t flags,
	uint16_t window, uint16_t checksum,
	const uint8_t *payload, size_t payload_len, void *user_data);
typedef void (*tcplab_start_timer_cb)(uint64_t delay_ms, uint32_t timer_id, void *user_data);
typedef void (*tcplab_cancel_timer_cb)(uint32_t timer_id, void *user_data);
typedef void (*tcplab_deliver_data_cb)(const uint8_t *data, size_t data_len, void *user_data);
typedef void (*tcplab_log_cb)(const uint8_t *message, size_t message_len, void *user_data);
typedef uint64_t (*tcplab_now_cb)(void *user_data);
typedef void (*tcplab_record_metric_cb)(const uint8_t *name, size_t name_len,
	double value, void *user_data);

// Host service table. Null entries are treated as no-ops (a null now yields
// time zero).
typedef struct tcplab_host_table {
	tcplab_send_packet_cb   send_packet;
	tcplab_start_timer_cb   start_timer;
	tcplab_cancel_timer_cb  cancel_timer;
	tcplab_deliver_data_cb  deliver_data;
	tcplab_log_cb           log;
	tcplab_now_cb           now;
	tcplab_record_metric_cb record_metric;
	void                   *user_data;
} tcplab_host_table;

// Go cannot call C function pointers directly; these bridges do.
static void tcplab_bridge_send_packet(tcplab_send_packet_cb cb, uint32_t seq,
	uint32_t ack, uint8_t flags, uint16_t window, uint16_t checksum,
	const uint8_t *payload, size_t payload_len, void *user_data) {
	cb(seq, ack, flags, window, checksum, payload, payload_len, user_data);
}
static void tcplab_bridge_start_timer(tcplab_start_timer_cb cb, uint64_t delay_ms,
	uint32_t timer_id, void *user_data) {
	cb(delay_ms, timer_id, user_data);
}
static void tcplab_bridge_cancel_timer(tcplab_cancel_timer_cb cb, uint32_t timer_id,
	void *user_data) {
	cb(timer_id, user_data);
}
static void tcplab_bridge_deliver_data(tcplab_deliver_data_cb cb, const uint8_t *data,
	size_t data_len, void *user_data) {
	cb(data, data_len, user_data);
}
static void tcplab_bridge_log(tcplab_log_cb cb, const uint8_t *message,
	size_t message_len, void *user_data) {
	cb(message, message_len, user_data);
}
static uint64_t tcplab_bridge_now(tcplab_now_cb cb, void *user_data) {
	return cb(user_data);
}
static void tcplab_bridge_record_metric(tcplab_record_metric_cb cb, const uint8_t *name,
	size_t name_len, double value, void *user_data) {
	cb(name, name_len, value, user_data);
}
*/
import "C"

import (
	"unsafe"

	"github.com/opd-ai/tcplab/abi"
	"github.com/opd-ai/tcplab/builtin"
)

func main() {} // Required for c-shared build mode

// hostTableFromC wraps the C callback table in Go closures. The table struct
// is copied up front; the host must keep user_data alive for the instance's
// lifetime.
func hostTableFromC(table *C.tcplab_host_table) abi.HostTable {
	if table == nil {
		return abi.HostTable{}
	}
	t := *table
	ht := abi.HostTable{}

	if t.send_packet != nil {
		ht.SendPacket = func(seq, ack uint32, flags uint8, window, checksum uint16, payload []byte) {
			var p *C.uint8_t
			if len(payload) > 0 {
				p = (*C.uint8_t)(unsafe.Pointer(&payload[0]))
			}
			C.tcplab_bridge_send_packet(t.send_packet,
				C.uint32_t(seq), C.uint32_t(ack), C.uint8_t(flags),
				C.uint16_t(window), C.uint16_t(checksum),
				p, C.size_t(len(payload)), t.user_data)
		}
	}
	if t.start_timer != nil {
		ht.StartTimer = func(delayMS uint64, timerID uint32) {
			C.tcplab_bridge_start_timer(t.start_timer,
				C.uint64_t(delayMS), C.uint32_t(timerID), t.user_data)
		}
	}
	if t.cancel_timer != nil {
		ht.CancelTimer = func(timerID uint32) {
			C.tcplab_bridge_cancel_timer(t.cancel_timer, C.uint32_t(timerID), t.user_data)
		}
	}
	if t.deliver_data != nil {
		ht.DeliverData = func(data []byte) {
			var p *C.uint8_t
			if len(data) > 0 {
				p = (*C.uint8_t)(unsafe.Pointer(&data[0]))
			}
			C.tcplab_bridge_deliver_data(t.deliver_data, p, C.size_t(len(data)), t.user_data)
		}
	}
	if t.log != nil {
		ht.Log = func(message string) {
			msg := []byte(message)
			var p *C.uint8_t
			if len(msg) > 0 {
				p = (*C.uint8_t)(unsafe.Pointer(&msg[0]))
			}
			C.tcplab_bridge_log(t.log, p, C.size_t(len(msg)), t.user_data)
		}
	}
	if t.now != nil {
		ht.Now = func() uint64 {
			return uint64(C.tcplab_bridge_now(t.now, t.user_data))
		}
	}
	if t.record_metric != nil {
		ht.RecordMetric = func(name string, value float64) {
			n := []byte(name)
			var p *C.uint8_t
			if len(n) > 0 {
				p = (*C.uint8_t)(unsafe.Pointer(&n[0]))
			}
			C.tcplab_bridge_record_metric(t.record_metric,
				p, C.size_t(len(n)), C.double(value), t.user_data)
		}
	}
	return ht
}

//export tcplab_abi_version
func tcplab_abi_version() C.uint32_t {
	return C.uint32_t(abi.ABIVersion)
}

// tcplab_module_create instantiates a built-in protocol module. role is 0
// for sender, 1 for receiver. Returns 0 on failure.
//
//export tcplab_module_create
func tcplab_module_create(name *C.uint8_t, nameLen C.size_t, role C.int, table *C.tcplab_host_table) C.tcplab_handle {
	if name == nil || nameLen == 0 {
		return 0
	}
	protoName := string(C.GoBytes(unsafe.Pointer(name), C.int(nameLen)))

	protoRole := builtin.RoleSender
	if role != 0 {
		protoRole = builtin.RoleReceiver
	}

	id := createInstance(protoName, protoRole, hostTableFromC(table))
	return C.tcplab_handle(id)
}

//export tcplab_module_destroy
func tcplab_module_destroy(h C.tcplab_handle) {
	destroyInstance(uint64(h))
}

//export tcplab_module_init
func tcplab_module_init(h C.tcplab_handle) {
	if inst := lookupInstance(uint64(h)); inst != nil {
		inst.desc.Init(inst.handle)
	}
}

//export tcplab_module_on_app_data
func tcplab_module_on_app_data(h C.tcplab_handle, data *C.uint8_t, dataLen C.size_t) {
	inst := lookupInstance(uint64(h))
	if inst == nil {
		return
	}
	var payload []byte
	if data != nil && dataLen > 0 {
		payload = C.GoBytes(unsafe.Pointer(data), C.int(dataLen))
	}
	inst.desc.OnAppData(inst.handle, payload)
}

//export tcplab_module_on_packet
func tcplab_module_on_packet(h C.tcplab_handle, seq, ack C.uint32_t, flags C.uint8_t,
	window, checksum C.uint16_t, payload *C.uint8_t, payloadLen C.size_t) {
	inst := lookupInstance(uint64(h))
	if inst == nil {
		return
	}
	var data []byte
	if payload != nil && payloadLen > 0 {
		data = C.GoBytes(unsafe.Pointer(payload), C.int(payloadLen))
	}
	inst.desc.OnPacket(inst.handle, uint32(seq), uint32(ack), uint8(flags),
		uint16(window), uint16(checksum), data)
}

//export tcplab_module_on_timer
func tcplab_module_on_timer(h C.tcplab_handle, timerID C.uint32_t) {
	if inst := lookupInstance(uint64(h)); inst != nil {
		inst.desc.OnTimer(inst.handle, uint32(timerID))
	}
}

// tcplab_run_scenario loads a TOML scenario and runs it on the named builtin
// pair. Returns 0 when every assertion passed, 1 when one failed and -1 on
// error.
//
//export tcplab_run_scenario
func tcplab_run_scenario(path *C.uint8_t, pathLen C.size_t,
	sender *C.uint8_t, senderLen C.size_t,
	receiver *C.uint8_t, receiverLen C.size_t) C.int {
	if path == nil || pathLen == 0 {
		return -1
	}

	scenarioPath := string(C.GoBytes(unsafe.Pointer(path), C.int(pathLen)))
	senderName, receiverName := "", ""
	if sender != nil && senderLen > 0 {
		senderName = string(C.GoBytes(unsafe.Pointer(sender), C.int(senderLen)))
	}
	if receiver != nil && receiverLen > 0 {
		receiverName = string(C.GoBytes(unsafe.Pointer(receiver), C.int(receiverLen)))
	}
	return C.int(runScenarioFile(scenarioPath, senderName, receiverName))
}
