// Package endpoint implements the per-endpoint reader and writer tasks,
// keep-alive supervision, and the client callback executor described in
// spec §4.4, sitting between the channel manager and the PCP/payload/BWU
// consumers.
package endpoint

import (
	"context"
	"log/slog"
	"sync"

	"nearby/channel"
	"nearby/wire"
)

// Listener receives endpoint lifecycle and frame-dispatch notifications,
// always via the manager's CallbackExecutor, so callers never block a
// reader or writer goroutine.
type Listener interface {
	FrameSink
	OnRemoteUnreachable(endpointID string)
}

// entry tracks the running tasks for one registered endpoint.
type entry struct {
	cancel context.CancelFunc
	writer *writerTask
}

// Manager starts and supervises the reader/writer pair for every endpoint
// registered with it, dispatching classified frames and lifecycle events
// to Listener through a single CallbackExecutor.
type Manager struct {
	mu       sync.Mutex
	entries  map[string]*entry
	chans    *channel.Manager
	listener Listener
	executor *CallbackExecutor
	log      *slog.Logger
}

// New wires a Manager to the given channel manager and listener.
func New(chans *channel.Manager, listener Listener, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		entries:  make(map[string]*entry),
		chans:    chans,
		listener: listener,
		executor: NewCallbackExecutor(0),
		log:      log,
	}
}

// Register starts the reader task, writer task, and keep-alive watchdog
// for endpointID, bound to ch. Registering an id that already has running
// tasks first stops the old ones.
func (m *Manager) Register(endpointID string, ch *channel.Channel, opts KeepAliveOptions) {
	m.mu.Lock()
	if old, ok := m.entries[endpointID]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := newWriterTask(endpointID, ch, m.log)
	m.entries[endpointID] = &entry{cancel: cancel, writer: w}
	m.mu.Unlock()

	reader := &readerTask{
		endpointID: endpointID,
		ch:         ch,
		sink:       m,
		onIOError: func() {
			m.executor.Post(func() { m.listener.OnDisconnection(endpointID) })
		},
		log: m.log,
	}

	go reader.run(ctx)
	go w.run(ctx, opts)
	go keepAliveWatchdog(ctx, ch, opts, func() {
		_ = ch.Close(channel.ReasonRemoteUnreachable)
		m.executor.Post(func() { m.listener.OnRemoteUnreachable(endpointID) })
	})
}

// Unregister stops the reader, writer, and watchdog goroutines for
// endpointID. It does not itself close the channel; callers coordinate
// that through the channel manager's Unregister.
func (m *Manager) Unregister(endpointID string) {
	m.mu.Lock()
	e, ok := m.entries[endpointID]
	if ok {
		delete(m.entries, endpointID)
	}
	m.mu.Unlock()
	if ok {
		e.cancel()
	}
}

// Send enqueues f for serialized writing to endpointID. It is a no-op if
// the endpoint is not currently registered.
func (m *Manager) Send(endpointID string, f wire.Frame) {
	m.mu.Lock()
	e, ok := m.entries[endpointID]
	m.mu.Unlock()
	if !ok {
		return
	}
	e.writer.Enqueue(f)
}

// SetListener rewires the Listener notified of future dispatches. Used to
// break the construction cycle between a Manager and the controller that
// both depends on it and supplies it: build the Manager with a nil
// Listener, construct the controller with that Manager, then call
// SetListener once the controller exists.
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Close shuts down every running task and the callback executor.
func (m *Manager) Close() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range entries {
		e.cancel()
	}
	m.executor.Close()
}

// The following FrameSink methods implement the reader task's dispatch
// target: each posts the corresponding Listener callback onto the shared
// executor so client notifications preserve engine emission order.

func (m *Manager) OnKeepAlive(endpointID string) {
	// Keep-alive frames only reset the read timestamp (handled inside
	// Channel.Read itself); nothing further to dispatch to the client.
}

func (m *Manager) OnDisconnection(endpointID string) {
	m.executor.Post(func() { m.listener.OnDisconnection(endpointID) })
}

func (m *Manager) OnPayloadTransfer(endpointID string, f wire.PayloadTransfer) {
	m.executor.Post(func() { m.listener.OnPayloadTransfer(endpointID, f) })
}

func (m *Manager) OnBandwidthUpgradeNegotiation(endpointID string, f wire.BandwidthUpgradeNegotiation) {
	m.executor.Post(func() { m.listener.OnBandwidthUpgradeNegotiation(endpointID, f) })
}

func (m *Manager) OnConnectionRequest(endpointID string, f wire.ConnectionRequest) {
	m.executor.Post(func() { m.listener.OnConnectionRequest(endpointID, f) })
}

func (m *Manager) OnConnectionResponse(endpointID string, f wire.ConnectionResponse) {
	m.executor.Post(func() { m.listener.OnConnectionResponse(endpointID, f) })
}
