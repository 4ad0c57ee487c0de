package nearby

import (
	"context"
	"log/slog"
	"sync"

	"nearby/channel"
	"nearby/endpoint"
	"nearby/internal/store"
	"nearby/medium"
	"nearby/payload"
	"nearby/pcp"
)

// Core is one client handle, spec §3's "Client handle" realized as a Go
// struct: it owns the pcp.Controller and the channel/endpoint/payload
// managers beneath it, plus the registered PlatformMediums used to turn
// StartAdvertising/StartDiscovery/RequestConnection into real dials and
// listens. Grounded on server/room.go's single-struct-owns-everything
// shape, generalized from one chat room to one local node.
//
// Construction breaks the same cycle endpoint.Manager and payload.Manager
// solve with SetListener: Core must be the Controller's Listener (so it
// can remember endpoints to store on InitiatedEvent), but the Controller
// has to exist before Core can reference it. NewCore builds the
// Controller with a nil Listener, builds Core around it, then wires Core
// in with Controller.SetListener.
type Core struct {
	mu  sync.Mutex
	log *slog.Logger

	ctrl      *pcp.Controller
	channels  *channel.Manager
	endpoints *endpoint.Manager
	payloads  *payload.Manager
	store     *store.Store

	mediums map[medium.Kind]medium.PlatformMedium
	listener Listener

	serviceID string
	advMedium medium.PlatformMedium
	advLn     medium.Listener
	advCancel context.CancelFunc

	discListener DiscoveryListener
	discCancel   context.CancelFunc
	discovered   map[string]FoundEndpoint
}

// NewCore constructs a Core for selfEndpointID (empty generates a fresh
// random one, per pcp.NewController). st may be nil — a Core with no
// store never remembers endpoints across restarts.
func NewCore(selfEndpointID string, st *store.Store, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	chans := channel.New(log)
	eps := endpoint.New(chans, nil, log)
	pls := payload.New(nil, log)
	ctrl := pcp.NewController(selfEndpointID, chans, eps, pls, nil, log)
	eps.SetListener(ctrl)
	pls.SetListener(ctrl)

	c := &Core{
		log:        log,
		ctrl:       ctrl,
		channels:   chans,
		endpoints:  eps,
		payloads:   pls,
		store:      st,
		mediums:    make(map[medium.Kind]medium.PlatformMedium),
		discovered: make(map[string]FoundEndpoint),
	}
	ctrl.SetListener(c)
	return c
}

// SelfEndpointID returns the id this node advertises as.
func (c *Core) SelfEndpointID() string { return c.ctrl.SelfEndpointID() }

// RegisterMedium wires a PlatformMedium in under its own Kind. Call this
// once per medium the host supports before StartAdvertising/
// StartDiscovery; both pick the best registered medium among the
// options' AllowedMediums by throughput (medium.PreferenceOrder).
func (c *Core) RegisterMedium(m medium.PlatformMedium) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mediums[m.Kind()] = m
}

// SetUpgradeMedium installs the PlatformMedium InitiateBandwidthUpgrade
// targets; it must already have been passed to RegisterMedium.
func (c *Core) SetUpgradeMedium(kind medium.Kind) Status {
	c.mu.Lock()
	m, ok := c.mediums[kind]
	c.mu.Unlock()
	if !ok {
		return StatusError
	}
	c.ctrl.SetUpgradeMedium(m)
	return StatusSuccess
}

// SetListener installs the Listener notified of every lifecycle/payload
// event. Only one Listener is active at a time, matching one Core per
// client handle.
func (c *Core) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// OnEvent implements pcp.Listener. An InitiatedEvent is recorded to store
// (when present) before being forwarded, so a crash between accept and
// the client's own bookkeeping never loses the pairing; other events are
// forwarded without being recorded.
func (c *Core) OnEvent(ev pcp.Event) {
	if ie, ok := ev.(pcp.InitiatedEvent); ok && c.store != nil {
		if err := c.store.Remember(context.Background(), store.KnownEndpoint{
			EndpointID:   ie.EndpointID,
			EndpointName: string(ie.EndpointName),
			AuthToken:    ie.AuthToken,
		}); err != nil {
			c.log.Warn("remember endpoint failed", "endpoint_id", ie.EndpointID, "err", err)
		}
	}

	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()
	if listener != nil {
		listener.OnEvent(ev)
	}
}

var _ pcp.Listener = (*Core)(nil)

// Snapshot is a read-only view of Core's current state, used by
// cmd/nearbyd's debug API.
type Snapshot struct {
	EndpointID  string
	ServiceID   string
	Advertising bool
	Discovering bool
	Mediums     []string
	Discovered  []FoundEndpoint
}

// Snapshot returns a point-in-time view of this Core's state.
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	mediums := make([]string, 0, len(c.mediums))
	for k := range c.mediums {
		mediums = append(mediums, k.String())
	}
	discovered := make([]FoundEndpoint, 0, len(c.discovered))
	for _, fe := range c.discovered {
		discovered = append(discovered, fe)
	}
	return Snapshot{
		EndpointID:  c.ctrl.SelfEndpointID(),
		ServiceID:   c.serviceID,
		Advertising: c.advLn != nil,
		Discovering: c.discCancel != nil,
		Mediums:     mediums,
		Discovered:  discovered,
	}
}

// Close tears down every connection and stops this Core's background
// goroutines. It does not close the store; the caller opened it and
// should close it.
func (c *Core) Close() {
	c.StopAdvertising()
	c.StopDiscovery()
	c.ctrl.StopAllEndpoints()
	c.endpoints.Close()
	c.ctrl.Close()
}
