package medium

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"nearby/discovery"
)

// SimMedium is a deterministic, in-process medium used by the test suite
// in place of a real radio. It is grounded on the original source's own
// platform_v2/base/medium_environment.h simulation seam: tests register
// a shared SimNetwork, dial/listen against named addresses, and get
// net.Pipe-backed channels with no real sockets involved.
type SimMedium struct {
	kind    Kind
	network *SimNetwork

	mu            sync.Mutex
	advServiceID  string
	advEndpointID string
}

// SimNetwork is the shared rendezvous every SimMedium dials/listens
// through, analogous to a single radio band shared by every device in a
// test. It also plays the part of the airwaves for advertise/scan: a
// SimMedium "broadcasts" by registering into network.adverts, and a
// scanning SimMedium polls that same map.
type SimNetwork struct {
	mu        sync.Mutex
	listeners map[string]*simListener
	adverts   map[string]map[string]Advertisement // serviceID -> endpointID -> ad
}

// NewSimNetwork returns an empty simulated network.
func NewSimNetwork() *SimNetwork {
	return &SimNetwork{
		listeners: make(map[string]*simListener),
		adverts:   make(map[string]map[string]Advertisement),
	}
}

func (n *SimNetwork) setAdvert(serviceID string, ad Advertisement) {
	n.mu.Lock()
	defer n.mu.Unlock()
	bucket, ok := n.adverts[serviceID]
	if !ok {
		bucket = make(map[string]Advertisement)
		n.adverts[serviceID] = bucket
	}
	bucket[ad.EndpointID] = ad
}

func (n *SimNetwork) removeAdvert(serviceID, endpointID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.adverts[serviceID], endpointID)
}

func (n *SimNetwork) snapshotAdverts(serviceID string) []Advertisement {
	n.mu.Lock()
	defer n.mu.Unlock()
	bucket := n.adverts[serviceID]
	out := make([]Advertisement, 0, len(bucket))
	for _, ad := range bucket {
		out = append(out, ad)
	}
	return out
}

// scanPollInterval is how often Scan re-samples the directory. A real BLE
// scan is event-driven; polling a shared map is the simplest faithful
// stand-in for a test medium.
const scanPollInterval = 20 * time.Millisecond

// NewSimMedium returns a medium bound to network, tagged with kind so the
// BWU orchestrator can still reason about throughput ranking in tests.
func NewSimMedium(kind Kind, network *SimNetwork) *SimMedium {
	return &SimMedium{kind: kind, network: network}
}

func (m *SimMedium) Kind() Kind { return m.kind }

func (m *SimMedium) Listen(ctx context.Context) (Listener, error) {
	m.network.mu.Lock()
	defer m.network.mu.Unlock()

	addr := fmt.Sprintf("sim://%s/%d", m.kind, len(m.network.listeners)+1)
	l := &simListener{addr: addr, incoming: make(chan net.Conn, 8), closed: make(chan struct{})}
	m.network.listeners[addr] = l
	return l, nil
}

func (m *SimMedium) Dial(ctx context.Context, addr string) (Channel, error) {
	m.network.mu.Lock()
	l, ok := m.network.listeners[addr]
	m.network.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("medium: sim address %q not listening", addr)
	}

	local, remote := net.Pipe()
	select {
	case l.incoming <- remote:
	case <-l.closed:
		_ = local.Close()
		_ = remote.Close()
		return nil, fmt.Errorf("medium: sim listener %q closed", addr)
	case <-ctx.Done():
		_ = local.Close()
		_ = remote.Close()
		return nil, ctx.Err()
	}
	return &simChannel{conn: local, remoteAddr: addr}, nil
}

type simListener struct {
	addr     string
	incoming chan net.Conn
	closeOnce sync.Once
	closed   chan struct{}
}

func (l *simListener) Accept(ctx context.Context) (Channel, error) {
	select {
	case conn := <-l.incoming:
		return &simChannel{conn: conn, remoteAddr: l.addr}, nil
	case <-l.closed:
		return nil, fmt.Errorf("medium: sim listener %q closed", l.addr)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *simListener) Addr() string { return l.addr }

func (l *simListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

type simChannel struct {
	conn       net.Conn
	remoteAddr string
}

func (c *simChannel) Read(p []byte) (int, error)  { return c.conn.Read(p) }
func (c *simChannel) Write(p []byte) (int, error) { return c.conn.Write(p) }
func (c *simChannel) Close() error                { return c.conn.Close() }
func (c *simChannel) RemoteAddr() string          { return c.remoteAddr }

// FramesAreMessages is false: a SimMedium channel is a raw byte pipe, so
// callers apply wire.ReadFrame's length-prefix framing exactly as they
// would over a real Wi-Fi LAN TCP socket or Bluetooth RFCOMM socket.
func (c *simChannel) FramesAreMessages() bool { return false }

// Advertise registers (serviceID, endpointID) into the shared network's
// directory. Only one registration is live per SimMedium at a time; a
// second call replaces the first.
func (m *SimMedium) Advertise(serviceID, endpointID string, endpointName []byte, addr string) error {
	m.mu.Lock()
	m.advServiceID, m.advEndpointID = serviceID, endpointID
	m.mu.Unlock()

	m.network.setAdvert(serviceID, Advertisement{
		EndpointID:   endpointID,
		EndpointName: endpointName,
		Addr:         addr,
		Kind:         m.kind,
	})
	return nil
}

// StopAdvertising withdraws whatever this medium last advertised.
func (m *SimMedium) StopAdvertising() error {
	m.mu.Lock()
	serviceID, endpointID := m.advServiceID, m.advEndpointID
	m.advServiceID, m.advEndpointID = "", ""
	m.mu.Unlock()

	if serviceID == "" {
		return nil
	}
	m.network.removeAdvert(serviceID, endpointID)
	return nil
}

// Scan polls the network's directory for serviceID, using a
// discovery.LostEntityTracker to turn successive snapshots into
// found/lost edges exactly as a real scan's per-round callback would.
func (m *SimMedium) Scan(ctx context.Context, serviceID string, found func(Advertisement), lost func(string)) error {
	tracker := discovery.NewLostEntityTracker[string]()

	go func() {
		ticker := time.NewTicker(scanPollInterval)
		defer ticker.Stop()
		visible := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := m.network.snapshotAdverts(serviceID)
				for _, ad := range snapshot {
					tracker.Found(ad.EndpointID)
					if !visible[ad.EndpointID] {
						visible[ad.EndpointID] = true
						found(ad)
					}
				}
				for _, lostID := range tracker.ComputeLostEntities() {
					delete(visible, lostID)
					lost(lostID)
				}
			}
		}
	}()
	return nil
}

var _ Scanner = (*SimMedium)(nil)
