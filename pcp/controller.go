package pcp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"

	"nearby/channel"
	"nearby/endpoint"
	"nearby/medium"
	"nearby/payload"
	"nearby/wire"
)

// pendingConn tracks one endpoint's position in the state machine
// diagrammed in spec §4.6, from the moment a raw socket is attributed to
// an endpoint id until it closes.
type pendingConn struct {
	endpointID string
	info       EndpointInfo
	side       Side
	state      State
	opts       ConnectionOptions
	medium     medium.Kind
	ch         *channel.Channel
	encCtx     *channel.EncryptionContext
	authToken  string

	localAccepted  bool
	remoteAccepted bool
}

// Controller is the PCP state machine for one client: it owns the
// pending-connection table, guarded by mu, and drives the
// channel/endpoint/payload managers beneath it. Public calls run on the
// caller's goroutine; there is no API serializer goroutine. One
// Controller corresponds to one client handle.
//
// Grounded on server/room.go's mutex-guarded registry (generalized from
// per-room user caps to per-strategy topology caps) and server/client.go's
// circuit-breaker idiom, generalized into the per-endpoint pending-upgrade
// record (bwuState) in bwu.go.
type Controller struct {
	mu             sync.Mutex
	selfEndpointID string
	serviceID      string
	strategy       Strategy
	topology       Topology
	advertising    bool
	discovering    bool
	conns          map[string]*pendingConn
	bwu            map[string]*bwuState
	upgradeMedium  medium.PlatformMedium

	channels  *channel.Manager
	endpoints *endpoint.Manager
	payloads  *payload.Manager
	listener  Listener
	executor  *endpoint.CallbackExecutor
	log       *slog.Logger
}

// NewController wires a Controller to the managers beneath it. An empty
// selfEndpointID generates a fresh random one.
func NewController(selfEndpointID string, channels *channel.Manager, endpoints *endpoint.Manager, payloads *payload.Manager, listener Listener, log *slog.Logger) *Controller {
	if selfEndpointID == "" {
		selfEndpointID = NewEndpointID()
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Controller{
		selfEndpointID: selfEndpointID,
		conns:          make(map[string]*pendingConn),
		bwu:            make(map[string]*bwuState),
		channels:       channels,
		endpoints:      endpoints,
		payloads:       payloads,
		listener:       listener,
		executor:       endpoint.NewCallbackExecutor(0),
		log:            log.With("self_endpoint_id", selfEndpointID),
	}
	return c
}

// SelfEndpointID returns the id this controller advertises as.
func (c *Controller) SelfEndpointID() string { return c.selfEndpointID }

// SetListener rewires the Listener notified of future events. Mirrors
// endpoint.Manager.SetListener and payload.Manager.SetListener: it lets a
// facade that must itself be this Controller's Listener (so it can, say,
// remember an endpoint to a store on every event) construct the
// Controller first and wire itself in after.
func (c *Controller) SetListener(listener Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
}

// SetUpgradeMedium installs the PlatformMedium InitiateBandwidthUpgrade
// targets. Until set, bandwidth upgrades always fail.
func (c *Controller) SetUpgradeMedium(m medium.PlatformMedium) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upgradeMedium = m
}

// Close stops the client callback executor. Callers should call
// StopAllEndpoints first to tear down live connections.
func (c *Controller) Close() { c.executor.Close() }

func (c *Controller) emit(ev Event) {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()
	c.executor.Post(func() { listener.OnEvent(ev) })
}

// StartAdvertising transitions IDLE/LISTENING(discovery-only) into
// LISTENING for advertising, per spec §4.6's state diagram.
func (c *Controller) StartAdvertising(serviceID string, opts AdvertisingOptions) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.advertising {
		return StatusAlreadyAdvertising
	}
	if (c.advertising || c.discovering) && c.strategy != StrategyUnknown && c.strategy != opts.Strategy {
		return StatusAlreadyHaveActiveStrategy
	}
	c.serviceID = serviceID
	c.strategy = opts.Strategy
	c.topology = NewTopology(opts.Strategy)
	c.advertising = true
	return StatusSuccess
}

// StopAdvertising returns to LISTENING(discovery-only) or IDLE.
func (c *Controller) StopAdvertising() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advertising = false
}

// StartDiscovery transitions IDLE/LISTENING(advertising-only) into
// LISTENING for discovery.
func (c *Controller) StartDiscovery(serviceID string, opts DiscoveryOptions) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discovering {
		return StatusAlreadyDiscovering
	}
	if (c.advertising || c.discovering) && c.strategy != StrategyUnknown && c.strategy != opts.Strategy {
		return StatusAlreadyHaveActiveStrategy
	}
	c.serviceID = serviceID
	c.strategy = opts.Strategy
	c.topology = NewTopology(opts.Strategy)
	c.discovering = true
	return StatusSuccess
}

// StopDiscovery stops scanning for endpoints.
func (c *Controller) StopDiscovery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discovering = false
}

// RequestConnection is the discoverer's half of the connection
// handshake: raw is an already-dialed socket to endpointID (opened by
// whatever medium the caller chose based on the endpoint_found
// advertisement), localInfo is presented to the remote so it can show
// the user who's asking.
func (c *Controller) RequestConnection(endpointID string, raw medium.Channel, kind medium.Kind, localInfo EndpointInfo, opts ConnectionOptions) Status {
	opts = opts.normalize()

	c.mu.Lock()
	if !c.discovering {
		c.mu.Unlock()
		return StatusOutOfOrderAPICall
	}
	if _, exists := c.conns[endpointID]; exists {
		c.mu.Unlock()
		return StatusAlreadyConnectedToEndpoint
	}
	if c.topology != nil && !c.topology.AcceptsOutbound(c.channels.Len()) {
		c.mu.Unlock()
		return StatusAlreadyConnectedToEndpoint
	}
	ch := channel.New(endpointID, raw, kind, c.log)
	pc := &pendingConn{
		endpointID: endpointID,
		info:       localInfo,
		side:       SideRequester,
		state:      StatePendingAuth,
		opts:       opts,
		medium:     kind,
		ch:         ch,
	}
	c.conns[endpointID] = pc
	c.mu.Unlock()

	req := wire.Frame{
		Type: wire.FrameConnectionRequest,
		ConnectionRequest: &wire.ConnectionRequest{
			EndpointID:   c.selfEndpointID,
			EndpointName: append([]byte(nil), localInfo...),
			Nonce:        randomNonce(),
			Mediums:      mediumsToBytes(opts.AllowedMediums),
		},
	}
	if err := ch.Write(req); err != nil {
		c.mu.Lock()
		delete(c.conns, endpointID)
		c.mu.Unlock()
		c.log.Warn("connection request failed", "endpoint_id", endpointID, "err", err)
		return statusForMediumError(kind)
	}

	go c.completeHandshake(pc, true)
	return StatusSuccess
}

// AcceptIncoming is the advertiser's half: raw is a freshly accepted
// socket of unknown endpoint identity. It blocks on one read to learn
// which endpoint is calling, so callers should run it on its own
// goroutine per accepted socket (mirroring a per-connection accept
// handler).
func (c *Controller) AcceptIncoming(raw medium.Channel, kind medium.Kind) {
	ch := channel.New("", raw, kind, c.log)
	f, err := ch.Read()
	if err != nil || f.Type != wire.FrameConnectionRequest || f.ConnectionRequest == nil {
		_ = ch.Close(channel.ReasonIOError)
		return
	}
	req := f.ConnectionRequest
	ch.EndpointID = req.EndpointID

	c.mu.Lock()
	if !c.advertising {
		c.mu.Unlock()
		_ = ch.Close(channel.ReasonLocalDisconnect)
		return
	}
	if _, exists := c.conns[req.EndpointID]; exists {
		c.mu.Unlock()
		_ = ch.Close(channel.ReasonLocalDisconnect)
		return
	}
	if c.topology != nil && !c.topology.AcceptsMoreConnections(c.channels.Len()) {
		c.mu.Unlock()
		_ = ch.Write(wire.Frame{Type: wire.FrameConnectionResponse, ConnectionResponse: &wire.ConnectionResponse{Status: wire.ResponseReject}})
		_ = ch.Close(channel.ReasonLocalDisconnect)
		return
	}
	pc := &pendingConn{
		endpointID: req.EndpointID,
		info:       EndpointInfo(req.EndpointName),
		side:       SideAdvertiser,
		state:      StatePendingAuth,
		medium:     kind,
		ch:         ch,
	}
	c.conns[req.EndpointID] = pc
	c.mu.Unlock()

	c.completeHandshake(pc, false)
}

// completeHandshake runs the UKEY2-shaped Noise handshake over the raw
// channel, installs encryption, registers the endpoint with the channel
// and endpoint managers, and emits the InitiatedEvent both sides see per
// spec §4.6's PENDING_AUTH entry.
func (c *Controller) completeHandshake(pc *pendingConn, initiator bool) {
	hs, err := channel.NewNoiseHandshake()
	if err != nil {
		c.failPending(pc, StatusError)
		return
	}
	encCtx, err := pc.ch.RunHandshake(hs, initiator)
	if err != nil {
		c.log.Warn("handshake failed", "endpoint_id", pc.endpointID, "err", err)
		c.failPending(pc, StatusError)
		return
	}
	pc.ch.EnableEncryption(encCtx)
	pc.encCtx = encCtx
	pc.authToken = channel.AuthToken(encCtx.Hash())

	c.channels.Register(pc.endpointID, pc.ch)
	c.endpoints.Register(pc.endpointID, pc.ch, pc.keepAliveOptions())

	c.emit(InitiatedEvent{
		EndpointID:   pc.endpointID,
		EndpointName: append([]byte(nil), pc.info...),
		AuthToken:    pc.authToken,
		IsIncoming:   pc.side == SideAdvertiser,
	})
}

func (pc *pendingConn) keepAliveOptions() endpoint.KeepAliveOptions {
	return endpoint.KeepAliveOptions{Interval: pc.opts.KeepAliveInterval, Timeout: pc.opts.KeepAliveTimeout}.WithDefaults()
}

func (c *Controller) failPending(pc *pendingConn, status Status) {
	c.mu.Lock()
	delete(c.conns, pc.endpointID)
	c.mu.Unlock()
	_ = pc.ch.Close(channel.ReasonIOError)
	c.emit(RejectedEvent{EndpointID: pc.endpointID, Status: status})
}

// AcceptConnection is valid only from PENDING_AUTH. If the peer has
// already sent its own accept, the connection becomes ESTABLISHED
// immediately; otherwise it waits for OnConnectionResponse.
func (c *Controller) AcceptConnection(endpointID string) Status {
	c.mu.Lock()
	pc, ok := c.conns[endpointID]
	if !ok {
		c.mu.Unlock()
		return StatusEndpointUnknown
	}
	if pc.state != StatePendingAuth {
		c.mu.Unlock()
		return StatusOutOfOrderAPICall
	}
	pc.localAccepted = true
	bothAccepted := pc.remoteAccepted
	if bothAccepted {
		pc.state = StateEstablished
	}
	c.mu.Unlock()

	c.endpoints.Send(endpointID, wire.Frame{
		Type:               wire.FrameConnectionResponse,
		ConnectionResponse: &wire.ConnectionResponse{Status: wire.ResponseAccept},
	})

	if bothAccepted {
		c.emit(AcceptedEvent{EndpointID: endpointID})
	}
	return StatusSuccess
}

// RejectConnection is valid only from PENDING_AUTH.
func (c *Controller) RejectConnection(endpointID string) Status {
	c.mu.Lock()
	pc, ok := c.conns[endpointID]
	if !ok {
		c.mu.Unlock()
		return StatusEndpointUnknown
	}
	if pc.state != StatePendingAuth {
		c.mu.Unlock()
		return StatusOutOfOrderAPICall
	}
	pc.state = StateRejected
	delete(c.conns, endpointID)
	c.mu.Unlock()

	// Written directly rather than through the writer queue: this
	// connection is about to be unregistered, and a queued frame racing
	// against the writer's ctx.Done() case could be dropped silently.
	_ = pc.ch.Write(wire.Frame{
		Type:               wire.FrameConnectionResponse,
		ConnectionResponse: &wire.ConnectionResponse{Status: wire.ResponseReject},
	})
	c.endpoints.Unregister(endpointID)
	_ = pc.ch.Close(channel.ReasonLocalDisconnect)
	c.emit(RejectedEvent{EndpointID: endpointID, Status: StatusConnectionRejected})
	return StatusSuccess
}

// OnConnectionRequest is part of the endpoint.FrameSink surface. A second
// CONNECTION_REQUEST on an already-attributed channel never happens in
// this protocol (the first one is consumed synchronously by
// AcceptIncoming before the endpoint manager is involved), so this is a
// protocol violation: close the channel.
func (c *Controller) OnConnectionRequest(endpointID string, f wire.ConnectionRequest) {
	c.log.Warn("unexpected connection request on established channel", "endpoint_id", endpointID)
	c.OnDisconnection(endpointID)
}

// OnConnectionResponse handles the peer's accept/reject decision.
func (c *Controller) OnConnectionResponse(endpointID string, f wire.ConnectionResponse) {
	c.mu.Lock()
	pc, ok := c.conns[endpointID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if f.Status == wire.ResponseReject {
		delete(c.conns, endpointID)
		pc.state = StateRejected
		c.mu.Unlock()
		c.endpoints.Unregister(endpointID)
		_ = pc.ch.Close(channel.ReasonRemoteDisconnection)
		c.emit(RejectedEvent{EndpointID: endpointID, Status: StatusConnectionRejected})
		return
	}
	pc.remoteAccepted = true
	bothAccepted := pc.localAccepted
	if bothAccepted {
		pc.state = StateEstablished
	}
	c.mu.Unlock()

	if bothAccepted {
		c.emit(AcceptedEvent{EndpointID: endpointID})
	}
}

// OnKeepAlive is a no-op: the channel already recorded the read
// timestamp, nothing is client-visible.
func (c *Controller) OnKeepAlive(endpointID string) {}

// OnDisconnection tears down endpointID's state on a clean remote close.
func (c *Controller) OnDisconnection(endpointID string) {
	c.mu.Lock()
	pc, ok := c.conns[endpointID]
	if ok {
		delete(c.conns, endpointID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	wasEstablished := pc.state == StateEstablished
	c.endpoints.Unregister(endpointID)
	if wasEstablished {
		c.emit(DisconnectedEvent{EndpointID: endpointID})
	} else {
		c.emit(RejectedEvent{EndpointID: endpointID, Status: StatusEndpointIOError})
	}
}

// OnRemoteUnreachable fires on keep-alive timeout: treated identically
// to a disconnection from the client's point of view.
func (c *Controller) OnRemoteUnreachable(endpointID string) {
	c.OnDisconnection(endpointID)
}

// OnPayloadTransfer routes a PAYLOAD_TRANSFER frame to the payload
// manager, which calls back into this Controller's payload.Listener
// methods below, all still running on the endpoint manager's single
// callback executor goroutine — preserving spec §5's per-endpoint causal
// order without a second lock.
func (c *Controller) OnPayloadTransfer(endpointID string, f wire.PayloadTransfer) {
	c.payloads.HandleIncoming(endpointID, f)
}

var _ endpoint.Listener = (*Controller)(nil)

// DisconnectFromEndpoint tears an established (or pending) connection
// down from the local side.
func (c *Controller) DisconnectFromEndpoint(endpointID string) Status {
	c.mu.Lock()
	_, ok := c.conns[endpointID]
	if ok {
		delete(c.conns, endpointID)
	}
	c.mu.Unlock()
	if !ok {
		return StatusNotConnectedToEndpoint
	}
	c.endpoints.Unregister(endpointID)
	c.channels.Unregister(context.Background(), endpointID, channel.ReasonLocalDisconnect)
	c.emit(DisconnectedEvent{EndpointID: endpointID})
	return StatusSuccess
}

// StopAllEndpoints tears down every connection, waiting at most
// kWaitForDisconnect in total for the best-effort DISCONNECTION frames to
// land.
func (c *Controller) StopAllEndpoints() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.conns))
	for id := range c.conns {
		ids = append(ids, id)
	}
	c.conns = make(map[string]*pendingConn)
	c.advertising = false
	c.discovering = false
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), kWaitForDisconnect)
	defer cancel()
	for _, id := range ids {
		c.endpoints.Unregister(id)
		c.channels.Unregister(ctx, id, channel.ReasonLocalDisconnect)
		c.emit(DisconnectedEvent{EndpointID: id})
	}
}

// SendPayload fans p out to every endpoint currently ESTABLISHED among
// endpointIDs; endpoints not connected are silently skipped, and
// StatusNotConnectedToEndpoint is returned only when none of endpointIDs
// is ESTABLISHED.
func (c *Controller) SendPayload(endpointIDs []string, p payload.Payload) Status {
	c.mu.Lock()
	connected := make([]string, 0, len(endpointIDs))
	for _, id := range endpointIDs {
		if pc, ok := c.conns[id]; ok && pc.state == StateEstablished {
			connected = append(connected, id)
		}
	}
	c.mu.Unlock()
	if len(connected) == 0 {
		return StatusNotConnectedToEndpoint
	}
	go func() {
		if err := c.payloads.Send(p, connected, c.endpoints.Send); err != nil {
			c.log.Warn("payload send failed", "payload_id", p.ID(), "err", err)
		}
	}()
	return StatusSuccess
}

// CancelPayload cancels an in-flight send to endpointIDs.
func (c *Controller) CancelPayload(id payload.ID, endpointIDs []string) Status {
	c.payloads.CancelPayload(id, endpointIDs, c.endpoints.Send)
	return StatusSuccess
}

// The payload.Listener adapter: calls for incoming payloads arrive on the
// endpoint manager's callback executor (see OnPayloadTransfer above), and
// progress for outgoing payloads arrives on SendPayload's send goroutine;
// either way these just translate into Events on this Controller's own
// executor.

func (c *Controller) OnProgress(ev payload.ProgressEvent) {
	c.emit(PayloadProgressEvent{EndpointID: ev.EndpointID, Progress: ev})
}

func (c *Controller) OnBytesReceived(endpointID string, id payload.ID, data []byte) {
	c.emit(PayloadEvent{EndpointID: endpointID, PayloadID: id, Type: payload.TypeBytes, Size: int64(len(data)), Data: data})
}

func (c *Controller) OnStreamReceived(endpointID string, id payload.ID, size int64, reader io.ReadCloser) {
	c.emit(PayloadEvent{EndpointID: endpointID, PayloadID: id, Type: payload.TypeStream, Size: size, Stream: reader})
}

func (c *Controller) OnFileReceived(endpointID string, id payload.ID, size int64, path string) {
	c.emit(PayloadEvent{EndpointID: endpointID, PayloadID: id, Type: payload.TypeFile, Size: size, FilePath: path})
}

var _ payload.Listener = (*Controller)(nil)

func randomNonce() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return binary.BigEndian.Uint64(buf[:])
}

func mediumsToBytes(kinds []medium.Kind) []uint8 {
	out := make([]uint8, len(kinds))
	for i, k := range kinds {
		out[i] = uint8(k)
	}
	return out
}

func statusForMediumError(k medium.Kind) Status {
	switch k {
	case medium.KindBluetooth:
		return StatusBluetoothError
	case medium.KindBLE:
		return StatusBLEError
	case medium.KindWifiLAN:
		return StatusWifiLanError
	default:
		return StatusError
	}
}
