// Package securechan provides an example protocol module pair that runs a
// Noise NX handshake over the simulated channel and then carries
// ChaCha20-Poly1305 protected payloads.
//
// It exists to demonstrate that arbitrary policies, including real
// cryptography, ride on the plugin contract unchanged: the harness sees only
// packets, timers and delivered bytes. The pair is not reliable by itself; a
// lost data packet desynchronizes the transport nonces, which is detected,
// logged and surfaced as a metric rather than repaired.
package securechan

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"golang.org/x/crypto/curve25519"

	"github.com/opd-ai/tcplab/checksum"
	"github.com/opd-ai/tcplab/protocol"
	"github.com/opd-ai/tcplab/transport"
)

const (
	// handshakeTimer retransmits the initiator's first message until the
	// responder answers.
	handshakeTimer     uint32 = 1
	handshakeTimeoutMS uint64 = 500
)

var (
	// ErrHandshakeNotComplete indicates data arrived before the handshake
	// finished.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrDecryptFailed indicates a transport message failed authentication,
	// usually from corruption or nonce desynchronization after loss.
	ErrDecryptFailed = errors.New("transport message failed to decrypt")
)

func cipherSuite() noise.CipherSuite {
	return noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)
}

// generateStaticKey builds a Curve25519 keypair for the responder's static
// identity.
func generateStaticKey() (noise.DHKey, error) {
	private := make([]byte, 32)
	if _, err := rand.Read(private); err != nil {
		return noise.DHKey{}, fmt.Errorf("failed to generate static key: %w", err)
	}
	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return noise.DHKey{}, fmt.Errorf("failed to derive public key: %w", err)
	}
	return noise.DHKey{Private: private, Public: public}, nil
}

// Sender is the handshake initiator. Application data submitted before the
// handshake completes is buffered and flushed once transport keys exist.
type Sender struct {
	protocol.Base
	hs       *noise.HandshakeState
	sendCS   *noise.CipherState
	recvCS   *noise.CipherState
	firstMsg []byte
	pending  [][]byte
	nextSeq  uint32
	complete bool
	failed   bool
}

// NewSender creates an unstarted secure channel initiator.
func NewSender() *Sender { return &Sender{} }

// Init builds the handshake state and emits the first handshake message.
func (s *Sender) Init(ctx protocol.SystemContext) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite(),
		Random:      rand.Reader,
		Pattern:     noise.HandshakeNX,
		Initiator:   true,
	})
	if err != nil {
		s.failed = true
		ctx.Log(fmt.Sprintf("secure sender: handshake setup failed: %v", err))
		return
	}
	s.hs = hs

	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		s.failed = true
		ctx.Log(fmt.Sprintf("secure sender: handshake message failed: %v", err))
		return
	}
	s.firstMsg = msg

	ctx.Log("secure sender: handshake initiated")
	s.sendHandshake(ctx)
}

// OnPacket completes the handshake when the responder's message arrives,
// then flushes any buffered application data.
func (s *Sender) OnPacket(ctx protocol.SystemContext, pkt transport.Packet) {
	if s.failed || !pkt.Header.IsSYN() || !pkt.Header.IsACK() || s.complete {
		return
	}

	_, cs1, cs2, err := s.hs.ReadMessage(nil, pkt.Payload)
	if err != nil {
		ctx.Log(fmt.Sprintf("secure sender: handshake response rejected: %v", err))
		return
	}

	// cs1 seals initiator->responder, so the initiator sends with it.
	s.sendCS, s.recvCS = cs1, cs2
	s.complete = true
	ctx.CancelTimer(handshakeTimer)
	ctx.Log(fmt.Sprintf("secure sender: handshake complete at %dms", ctx.Now()))
	ctx.RecordMetric("secure.handshake_ms", float64(ctx.Now()))

	for _, data := range s.pending {
		s.sendData(ctx, data)
	}
	s.pending = nil
}

// OnTimer retransmits the first handshake message while unanswered.
func (s *Sender) OnTimer(ctx protocol.SystemContext, timerID uint32) {
	if timerID != handshakeTimer || s.complete || s.failed {
		return
	}
	ctx.Log("secure sender: handshake timeout, retransmitting")
	s.sendHandshake(ctx)
}

// OnAppData encrypts and sends, or buffers while the handshake is pending.
func (s *Sender) OnAppData(ctx protocol.SystemContext, data []byte) {
	if s.failed {
		ctx.Log("secure sender: dropping data, handshake failed")
		return
	}
	if !s.complete {
		s.pending = append(s.pending, data)
		ctx.Log(fmt.Sprintf("secure sender: buffering %d bytes until handshake completes", len(data)))
		return
	}
	s.sendData(ctx, data)
}

func (s *Sender) sendHandshake(ctx protocol.SystemContext) {
	pkt := transport.NewSegment(0, 0, transport.FlagSYN, s.firstMsg)
	pkt.Header.Checksum = checksum.Sum(s.firstMsg)
	ctx.SendPacket(pkt)
	ctx.StartTimer(handshakeTimeoutMS, handshakeTimer)
}

func (s *Sender) sendData(ctx protocol.SystemContext, data []byte) {
	ciphertext, err := s.sendCS.Encrypt(nil, nil, data)
	if err != nil {
		ctx.Log(fmt.Sprintf("secure sender: encrypt failed: %v", err))
		return
	}

	pkt := transport.NewSegment(s.nextSeq, 0, transport.FlagPSH, ciphertext)
	pkt.Header.Checksum = checksum.Sum(ciphertext)
	ctx.Log(fmt.Sprintf("secure sender: send seq=%d (%d bytes sealed)", s.nextSeq, len(ciphertext)))
	ctx.SendPacket(pkt)
	s.nextSeq++
}

// Receiver is the handshake responder. It holds the static identity of the
// channel and delivers decrypted payloads upward.
type Receiver struct {
	protocol.Base
	hs       *noise.HandshakeState
	sendCS   *noise.CipherState
	recvCS   *noise.CipherState
	response transport.Packet
	complete bool
	failed   bool
	desynced bool
}

// NewReceiver creates an unstarted secure channel responder.
func NewReceiver() *Receiver { return &Receiver{} }

// Init builds the responder handshake state with a fresh static keypair.
func (r *Receiver) Init(ctx protocol.SystemContext) {
	static, err := generateStaticKey()
	if err != nil {
		r.failed = true
		ctx.Log(fmt.Sprintf("secure receiver: %v", err))
		return
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite(),
		Random:        rand.Reader,
		Pattern:       noise.HandshakeNX,
		Initiator:     false,
		StaticKeypair: static,
	})
	if err != nil {
		r.failed = true
		ctx.Log(fmt.Sprintf("secure receiver: handshake setup failed: %v", err))
		return
	}
	r.hs = hs
	ctx.Log("secure receiver: ready")
}

// OnPacket answers handshake messages and decrypts transport messages.
func (r *Receiver) OnPacket(ctx protocol.SystemContext, pkt transport.Packet) {
	if r.failed {
		return
	}

	if !checksum.Verify(pkt.Payload, pkt.Header.Checksum) {
		ctx.Log(fmt.Sprintf("secure receiver: checksum mismatch seq=%d, dropping", pkt.Header.SeqNum))
		ctx.RecordMetric("secure.corrupt", 1)
		return
	}

	switch {
	case pkt.Header.IsSYN() && !pkt.Header.IsACK():
		r.handleHandshake(ctx, pkt)
	case pkt.Header.Flags&transport.FlagPSH != 0:
		r.handleData(ctx, pkt)
	}
}

func (r *Receiver) handleHandshake(ctx protocol.SystemContext, pkt transport.Packet) {
	if r.complete {
		// The initiator retransmitted because our response was lost.
		ctx.Log("secure receiver: duplicate handshake, re-sending response")
		ctx.SendPacket(r.response.Clone())
		return
	}

	_, _, _, err := r.hs.ReadMessage(nil, pkt.Payload)
	if err != nil {
		ctx.Log(fmt.Sprintf("secure receiver: handshake message rejected: %v", err))
		return
	}

	msg, cs1, cs2, err := r.hs.WriteMessage(nil, nil)
	if err != nil {
		ctx.Log(fmt.Sprintf("secure receiver: handshake response failed: %v", err))
		return
	}

	// NX completes in two messages, so the responder holds transport keys as
	// soon as its response is written. Split hands back the cipher states in
	// fixed order for both roles: cs1 seals initiator->responder, cs2 seals
	// responder->initiator. The responder receives with cs1.
	r.sendCS, r.recvCS = cs2, cs1
	r.complete = true

	resp := transport.NewSegment(0, 0, transport.FlagSYN|transport.FlagACK, msg)
	resp.Header.Checksum = checksum.Sum(msg)
	r.response = resp.Clone()

	ctx.Log("secure receiver: handshake complete")
	ctx.SendPacket(resp)
}

func (r *Receiver) handleData(ctx protocol.SystemContext, pkt transport.Packet) {
	if !r.complete {
		ctx.Log(fmt.Sprintf("secure receiver: data before handshake: %v", ErrHandshakeNotComplete))
		return
	}
	if r.desynced {
		ctx.RecordMetric("secure.dropped_after_desync", 1)
		return
	}

	plaintext, err := r.recvCS.Decrypt(nil, nil, pkt.Payload)
	if err != nil {
		// A lost data packet advances the sender's nonce past ours; every
		// later message will fail too. Surface it once and go quiet.
		r.desynced = true
		ctx.Log(fmt.Sprintf("secure receiver: %v (seq=%d): %v", ErrDecryptFailed, pkt.Header.SeqNum, err))
		ctx.RecordMetric("secure.desync", 1)
		return
	}

	ctx.Log(fmt.Sprintf("secure receiver: deliver seq=%d (%d bytes)", pkt.Header.SeqNum, len(plaintext)))
	ctx.DeliverData(plaintext)
}
