package payload

import (
	"io"
	"log/slog"
	"sync"

	"nearby/wire"
)

// SendFunc transmits a single frame to endpointID, normally bound to an
// endpoint.Manager's Send method. Decoupling the payload manager from the
// endpoint package via this function type avoids a layering dependency
// while still letting the payload manager ride the per-endpoint writer
// queue's backpressure.
type SendFunc func(endpointID string, f wire.Frame)

// Listener receives payload lifecycle notifications. Calls made while
// handling incoming frames run on the goroutine that called
// HandleIncoming; progress for an outgoing payload runs on the goroutine
// that called Send.
type Listener interface {
	OnProgress(ev ProgressEvent)
	OnBytesReceived(endpointID string, id ID, data []byte)
	OnStreamReceived(endpointID string, id ID, size int64, reader io.ReadCloser)
	OnFileReceived(endpointID string, id ID, size int64, path string)
}

// Manager tracks outgoing and incoming payload state per spec §4.5:
// fragmentation, reassembly, progress, cancellation, and partial-failure
// isolation across a multicast send.
type Manager struct {
	mu       sync.Mutex
	outgoing map[ID]*outgoingState
	incoming map[incomingKey]*incomingState
	listener Listener
	log      *slog.Logger
}

type incomingKey struct {
	endpointID string
	id         ID
}

// New wires a Manager to listener, notified on progress and completion.
func New(listener Listener, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		outgoing: make(map[ID]*outgoingState),
		incoming: make(map[incomingKey]*incomingState),
		listener: listener,
		log:      log,
	}
}

// SetListener rewires the Listener notified of future progress and
// completion callbacks. See endpoint.Manager.SetListener for why this
// exists: it breaks the construction cycle with a controller that both
// depends on this Manager and is supplied to it as a Listener.
func (m *Manager) SetListener(listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = listener
}
