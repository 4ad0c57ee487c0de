package channel

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"golang.org/x/crypto/hkdf"
)

// EncryptionContext is the opaque session-key material spec §3 describes
// as "derived from a UKEY2-like handshake." The core treats UKEY2 itself
// as an opaque black box (spec §1's non-goal); this type is the concrete
// realization of that box, built on a real Noise Protocol Framework
// handshake (github.com/flynn/noise) rather than a stub, so encryption
// actually happens end to end. Once installed on a Channel, every
// subsequent frame body is transparently encrypted/decrypted.
type EncryptionContext struct {
	send *noise.CipherState
	recv *noise.CipherState
	hash []byte
}

// Hash returns the completed handshake's channel-binding hash, the input
// to AuthToken. Identical on both sides of one handshake.
func (e *EncryptionContext) Hash() []byte { return e.hash }

var noiseCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

// HandshakeRunner performs the UKEY2-shaped key-agreement handshake over
// an unencrypted channel and produces an EncryptionContext. It is the
// concrete seam behind the "cryptographic primitives are an opaque
// black box" non-goal (spec §1): a real per-OS implementation could swap
// in the repository's native UKEY2 handshake without the channel package
// changing at all.
type HandshakeRunner interface {
	// RunInitiator performs the initiator side of the handshake, writing
	// to and reading from the channel's unencrypted raw bytes via send/recv.
	RunInitiator(send func([]byte) error, recv func() ([]byte, error)) (*EncryptionContext, error)
	// RunResponder performs the responder side.
	RunResponder(send func([]byte) error, recv func() ([]byte, error)) (*EncryptionContext, error)
}

// NoiseHandshake implements HandshakeRunner with a Noise XX handshake:
// three messages over the raw channel, with each side's static key sent
// encrypted inside the handshake itself rather than pre-shared (mirroring
// how the spec's UKEY2 handshake rides the same raw channel immediately
// after connect).
type NoiseHandshake struct {
	localStatic  noise.DHKey
	remoteStatic []byte // not set by this package; XX learns the peer's static key in-handshake
}

// NewNoiseHandshake generates a fresh static keypair for one handshake.
func NewNoiseHandshake() (*NoiseHandshake, error) {
	kp, err := noiseCipherSuite.GenerateKeypair(nil)
	if err != nil {
		return nil, fmt.Errorf("channel: generate noise keypair: %w", err)
	}
	return &NoiseHandshake{localStatic: kp}, nil
}

func (h *NoiseHandshake) RunInitiator(send func([]byte) error, recv func() ([]byte, error)) (*EncryptionContext, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: noiseCipherSuite,
		Pattern:     noise.HandshakeXX,
		Initiator:   true,
		StaticKeypair: h.localStatic,
	})
	if err != nil {
		return nil, fmt.Errorf("channel: noise handshake state: %w", err)
	}
	return runHandshake(hs, true, send, recv)
}

func (h *NoiseHandshake) RunResponder(send func([]byte) error, recv func() ([]byte, error)) (*EncryptionContext, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   noiseCipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     false,
		StaticKeypair: h.localStatic,
	})
	if err != nil {
		return nil, fmt.Errorf("channel: noise handshake state: %w", err)
	}
	return runHandshake(hs, false, send, recv)
}

// runHandshake drives the 3-message XX pattern (-> e / <- e, ee, s, es /
// -> s, se) common to both sides, alternating who writes first based on
// initiator.
func runHandshake(hs *noise.HandshakeState, initiator bool, send func([]byte) error, recv func() ([]byte, error)) (*EncryptionContext, error) {
	var sendCS, recvCS *noise.CipherState

	step := func(write bool) error {
		if write {
			msg, cs1, cs2, err := hs.WriteMessage(nil, nil)
			if err != nil {
				return fmt.Errorf("channel: noise write message: %w", err)
			}
			if err := send(msg); err != nil {
				return err
			}
			if cs1 != nil {
				sendCS, recvCS = cs1, cs2
			}
			return nil
		}
		msg, err := recv()
		if err != nil {
			return err
		}
		_, cs1, cs2, err := hs.ReadMessage(nil, msg)
		if err != nil {
			return fmt.Errorf("channel: noise read message: %w", err)
		}
		if cs1 != nil {
			recvCS, sendCS = cs1, cs2
		}
		return nil
	}

	// XX is 3 messages: initiator writes msg1, responder writes msg2,
	// initiator writes msg3. Cipher states materialize after msg3.
	order := []bool{initiator, !initiator, initiator}
	for _, isWriteTurn := range order {
		if err := step(isWriteTurn); err != nil {
			return nil, err
		}
	}

	// step already assigned sendCS/recvCS from this side's point of view
	// (cs1 carries initiator->responder traffic, cs2 the reverse).
	hash := hs.ChannelBinding()
	return &EncryptionContext{send: sendCS, recv: recvCS, hash: hash}, nil
}

// Encrypt seals plaintext as a Noise transport message. No counter or
// other prefix is added; the Noise nonce is managed internally by the
// CipherState.
func (e *EncryptionContext) Encrypt(plaintext []byte) ([]byte, error) {
	if e == nil || e.send == nil {
		return plaintext, nil
	}
	return e.send.Encrypt(nil, nil, plaintext)
}

// Decrypt opens a ciphertext produced by the peer's Encrypt.
func (e *EncryptionContext) Decrypt(ciphertext []byte) ([]byte, error) {
	if e == nil || e.recv == nil {
		return ciphertext, nil
	}
	return e.recv.Decrypt(nil, nil, ciphertext)
}

// authTokenLength is the number of bytes pulled from the HKDF stream to
// build the human-comparable auth token (spec glossary: "Auth token").
const authTokenLength = 4

// authTokenInfo is the HKDF "info" label binding the derived token to its
// purpose, so the same handshake hash can later feed other derived
// secrets (e.g. a store pairing key) without the outputs colliding.
var authTokenInfo = []byte("nearby auth token v1")

// AuthToken derives a short human-comparable string from the handshake
// state, shown to the user for out-of-band verification. It must be
// identical on both sides because it derives only from the shared
// handshake hash, not either side's ephemeral randomness order. Uses
// HKDF-SHA256 (golang.org/x/crypto/hkdf) rather than truncating the hash
// directly, so a future second derived value from the same handshake
// (a pairing key, say) is cryptographically independent of this one.
func AuthToken(handshakeHash []byte) string {
	if len(handshakeHash) == 0 {
		return ""
	}
	kdf := hkdf.New(sha256.New, handshakeHash, nil, authTokenInfo)
	out := make([]byte, authTokenLength)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return ""
	}
	n := binary.BigEndian.Uint32(out)
	return fmt.Sprintf("%06d", n%1000000)
}
