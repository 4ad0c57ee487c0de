package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nearby/wire"
)

// dataTransferDelay is kDataTransferDelay from spec §4.3: the pause
// before closing an unregistered channel, giving a best-effort
// DISCONNECTION frame time to leave the device.
const dataTransferDelay = 500 * time.Millisecond

// entry is one channel manager slot: the live channel, its encryption
// context (which may arrive before the channel itself), and the reason
// it was last torn down.
type entry struct {
	channel *Channel
	enc     *EncryptionContext
	reason  CloseReason
}

// Manager maintains the map<endpoint_id, channel> registry described in
// spec §4.3, grounded on server/internal/core/channel_state.go's
// mutex-guarded Session map generalized from per-user sessions to
// per-endpoint channels.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     *slog.Logger
}

// New returns an empty channel manager.
func New(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{entries: make(map[string]*entry), log: log}
}

// Register inserts ch for endpointID. If an entry already existed, the
// old channel is closed before this call returns (callers must not keep
// stale shared references past the replacement point, per spec §4.3).
// Any encryption context registered via Encrypt before the channel
// arrived is applied now.
func (m *Manager) Register(endpointID string, ch *Channel) {
	m.mu.Lock()
	old, existed := m.entries[endpointID]
	e := &entry{channel: ch}
	if existed && old.enc != nil {
		e.enc = old.enc
		ch.EnableEncryption(old.enc)
	}
	m.entries[endpointID] = e
	m.mu.Unlock()

	if existed && old.channel != nil {
		_ = old.channel.Close(ReasonUpgraded)
	}
	m.log.Debug("channel registered", "endpoint_id", endpointID, "replaced", existed)
}

// Replace is the bandwidth-upgrade variant of Register: it inserts the
// new channel atomically and returns the prior channel so the BWU
// orchestrator — not this call — decides when to close it (spec §4.3).
func (m *Manager) Replace(endpointID string, ch *Channel) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.entries[endpointID]
	e := &entry{channel: ch}
	if old != nil && old.enc != nil {
		e.enc = old.enc
		ch.EnableEncryption(old.enc)
	}
	m.entries[endpointID] = e
	m.log.Debug("channel replaced", "endpoint_id", endpointID)
	if old == nil {
		return nil
	}
	return old.channel
}

// Encrypt stores ctx for endpointID and, if a channel is already
// present, enables encryption on it immediately. Order-independent: a
// context registered before the channel arrives is applied on Register.
func (m *Manager) Encrypt(endpointID string, ctx *EncryptionContext) {
	m.mu.Lock()
	e, ok := m.entries[endpointID]
	if !ok {
		e = &entry{}
		m.entries[endpointID] = e
	}
	e.enc = ctx
	ch := e.channel
	m.mu.Unlock()

	if ch != nil {
		ch.EnableEncryption(ctx)
	}
}

// Get returns the live channel for endpointID, or nil if none is
// registered. The returned pointer is a shared reference: a reader or
// writer task may keep using it across a later Replace call, per spec
// §4.3's "shared, reference-counted access."
func (m *Manager) Get(endpointID string) *Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[endpointID]
	if !ok {
		return nil
	}
	return e.channel
}

// Unregister resumes the channel if paused, writes a best-effort
// DISCONNECTION frame, waits kDataTransferDelay for it to leave the
// device, then removes and closes the entry. Per spec §4.3.
func (m *Manager) Unregister(ctx context.Context, endpointID string, reason CloseReason) {
	m.mu.Lock()
	e, ok := m.entries[endpointID]
	if ok {
		delete(m.entries, endpointID)
	}
	m.mu.Unlock()
	if !ok || e.channel == nil {
		return
	}

	ch := e.channel
	ch.Resume()
	_ = ch.Write(wire.Frame{Type: wire.FrameDisconnection})

	select {
	case <-time.After(dataTransferDelay):
	case <-ctx.Done():
	}
	_ = ch.Close(reason)
	m.log.Debug("channel unregistered", "endpoint_id", endpointID, "reason", reason)
}

// Len reports how many endpoints currently have a registered channel.
// Used by the PCP controller's topology enforcement (spec §4.6's
// per-strategy connection caps).
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.channel != nil {
			n++
		}
	}
	return n
}
