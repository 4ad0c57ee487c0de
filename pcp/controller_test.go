package pcp

import (
	"context"
	"sync"
	"testing"
	"time"

	"nearby/channel"
	"nearby/endpoint"
	"nearby/medium"
	"nearby/payload"
)

// recordingListener captures every Event a Controller emits, both for
// order inspection and for channel-based waiting in tests.
type recordingListener struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ch: make(chan Event, 64)}
}

func (r *recordingListener) OnEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

var _ Listener = (*recordingListener)(nil)

func (r *recordingListener) waitFor(t *testing.T, match func(Event) bool, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-r.ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching event")
			return nil
		}
	}
}

func isInitiated(ev Event) bool        { _, ok := ev.(InitiatedEvent); return ok }
func isAccepted(ev Event) bool         { _, ok := ev.(AcceptedEvent); return ok }
func isRejected(ev Event) bool         { _, ok := ev.(RejectedEvent); return ok }
func isDisconnected(ev Event) bool     { _, ok := ev.(DisconnectedEvent); return ok }
func isPayload(ev Event) bool          { _, ok := ev.(PayloadEvent); return ok }
func isBandwidthChanged(ev Event) bool { _, ok := ev.(BandwidthChangedEvent); return ok }

// testNode bundles one client's full stack, wired through the same
// SetListener seam a real nearby.Core construction would use to break
// the Manager/Controller cycle.
type testNode struct {
	ctrl      *Controller
	listener  *recordingListener
	channels  *channel.Manager
	endpoints *endpoint.Manager
}

func newTestNode(t *testing.T, selfID string) *testNode {
	t.Helper()
	listener := newRecordingListener()
	chans := channel.New(nil)
	eps := endpoint.New(chans, nil, nil)
	pls := payload.New(nil, nil)
	ctrl := NewController(selfID, chans, eps, pls, listener, nil)
	eps.SetListener(ctrl)
	pls.SetListener(ctrl)
	return &testNode{ctrl: ctrl, listener: listener, channels: chans, endpoints: eps}
}

func (n *testNode) Close() {
	n.ctrl.Close()
	n.endpoints.Close()
}

// connectCluster drives a full RequestConnection/AcceptIncoming handshake
// between two fresh nodes over a SimMedium, stopping right after both
// sides have observed InitiatedEvent (PENDING_AUTH).
func connectCluster(t *testing.T, network *medium.SimNetwork, kind medium.Kind) (adv, req *testNode) {
	t.Helper()
	m := medium.NewSimMedium(kind, network)

	adv = newTestNode(t, "AAAA")
	req = newTestNode(t, "BBBB")

	if st := adv.ctrl.StartAdvertising("svc", AdvertisingOptions{Strategy: StrategyP2PCluster}); st != StatusSuccess {
		t.Fatalf("start advertising: %v", st)
	}
	if st := req.ctrl.StartDiscovery("svc", DiscoveryOptions{Strategy: StrategyP2PCluster}); st != StatusSuccess {
		t.Fatalf("start discovery: %v", st)
	}

	ln, err := m.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		raw, err := ln.Accept(context.Background())
		if err != nil {
			return
		}
		adv.ctrl.AcceptIncoming(raw, kind)
	}()

	raw, err := m.Dial(context.Background(), ln.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if st := req.ctrl.RequestConnection("AAAA", raw, kind, EndpointInfo("requester"), ConnectionOptions{Strategy: StrategyP2PCluster}); st != StatusSuccess {
		t.Fatalf("request connection: %v", st)
	}

	adv.listener.waitFor(t, isInitiated, 2*time.Second)
	req.listener.waitFor(t, isInitiated, 2*time.Second)
	return adv, req
}

// establishCluster additionally drives both sides' AcceptConnection calls
// to ESTABLISHED.
func establishCluster(t *testing.T, network *medium.SimNetwork, kind medium.Kind) (adv, req *testNode) {
	t.Helper()
	adv, req = connectCluster(t, network, kind)

	if st := adv.ctrl.AcceptConnection("BBBB"); st != StatusSuccess {
		t.Fatalf("advertiser accept: %v", st)
	}
	if st := req.ctrl.AcceptConnection("AAAA"); st != StatusSuccess {
		t.Fatalf("requester accept: %v", st)
	}

	adv.listener.waitFor(t, isAccepted, 2*time.Second)
	req.listener.waitFor(t, isAccepted, 2*time.Second)
	return adv, req
}

func TestHappyPathClusterConnect(t *testing.T) {
	network := medium.NewSimNetwork()
	adv, req := establishCluster(t, network, medium.KindWifiLAN)
	defer adv.Close()
	defer req.Close()
}

func TestPayloadBytesEcho(t *testing.T) {
	network := medium.NewSimNetwork()
	adv, req := establishCluster(t, network, medium.KindWifiLAN)
	defer adv.Close()
	defer req.Close()

	want := []byte("hello nearby")
	if st := req.ctrl.SendPayload([]string{"AAAA"}, payload.NewBytes(want)); st != StatusSuccess {
		t.Fatalf("send payload: %v", st)
	}

	ev := adv.listener.waitFor(t, isPayload, 2*time.Second)
	pe := ev.(PayloadEvent)
	if pe.Type != payload.TypeBytes || string(pe.Data) != string(want) {
		t.Fatalf("unexpected payload event: %+v", pe)
	}
}

func TestRejectConnection(t *testing.T) {
	network := medium.NewSimNetwork()
	adv, req := connectCluster(t, network, medium.KindWifiLAN)
	defer adv.Close()
	defer req.Close()

	if st := adv.ctrl.AcceptConnection("BBBB"); st != StatusSuccess {
		t.Fatalf("advertiser accept: %v", st)
	}
	if st := req.ctrl.RejectConnection("AAAA"); st != StatusSuccess {
		t.Fatalf("requester reject: %v", st)
	}

	reqEv := req.listener.waitFor(t, isRejected, 2*time.Second).(RejectedEvent)
	if reqEv.Status != StatusConnectionRejected {
		t.Fatalf("unexpected local reject status: %v", reqEv.Status)
	}
	advEv := adv.listener.waitFor(t, isRejected, 2*time.Second).(RejectedEvent)
	if advEv.Status != StatusConnectionRejected {
		t.Fatalf("unexpected peer reject status: %v", advEv.Status)
	}
}

func TestDisconnectFromEndpoint(t *testing.T) {
	network := medium.NewSimNetwork()
	adv, req := establishCluster(t, network, medium.KindWifiLAN)
	defer adv.Close()
	defer req.Close()

	if st := adv.ctrl.DisconnectFromEndpoint("BBBB"); st != StatusSuccess {
		t.Fatalf("disconnect: %v", st)
	}

	adv.listener.waitFor(t, isDisconnected, 2*time.Second)
	req.listener.waitFor(t, isDisconnected, 2*time.Second)
}

func TestKeepAliveTimeoutDisconnects(t *testing.T) {
	network := medium.NewSimNetwork()
	m := medium.NewSimMedium(medium.KindWifiLAN, network)

	adv := newTestNode(t, "AAAA")
	req := newTestNode(t, "BBBB")
	defer adv.Close()
	defer req.Close()

	if st := adv.ctrl.StartAdvertising("svc", AdvertisingOptions{Strategy: StrategyP2PCluster}); st != StatusSuccess {
		t.Fatalf("start advertising: %v", st)
	}
	if st := req.ctrl.StartDiscovery("svc", DiscoveryOptions{Strategy: StrategyP2PCluster}); st != StatusSuccess {
		t.Fatalf("start discovery: %v", st)
	}

	ln, err := m.Listen(context.Background())
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		raw, err := ln.Accept(context.Background())
		if err != nil {
			return
		}
		adv.ctrl.AcceptIncoming(raw, medium.KindWifiLAN)
	}()

	raw, err := m.Dial(context.Background(), ln.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	opts := ConnectionOptions{
		Strategy:          StrategyP2PCluster,
		KeepAliveInterval: 10 * time.Millisecond,
		KeepAliveTimeout:  40 * time.Millisecond,
	}
	if st := req.ctrl.RequestConnection("AAAA", raw, medium.KindWifiLAN, EndpointInfo("requester"), opts); st != StatusSuccess {
		t.Fatalf("request connection: %v", st)
	}

	adv.listener.waitFor(t, isInitiated, 2*time.Second)
	req.listener.waitFor(t, isInitiated, 2*time.Second)

	if st := adv.ctrl.AcceptConnection("BBBB"); st != StatusSuccess {
		t.Fatalf("advertiser accept: %v", st)
	}
	if st := req.ctrl.AcceptConnection("AAAA"); st != StatusSuccess {
		t.Fatalf("requester accept: %v", st)
	}
	adv.listener.waitFor(t, isAccepted, 2*time.Second)
	req.listener.waitFor(t, isAccepted, 2*time.Second)

	// The requester's short keep-alive watchdog (advertiser keeps the
	// default cadence) should fire well before the advertiser's next
	// keep-alive frame would otherwise arrive.
	req.listener.waitFor(t, isDisconnected, 2*time.Second)
}

func TestBandwidthUpgrade(t *testing.T) {
	network := medium.NewSimNetwork()
	adv, req := establishCluster(t, network, medium.KindBluetooth)
	defer adv.Close()
	defer req.Close()

	upgradeNetwork := medium.NewSimNetwork()
	adv.ctrl.SetUpgradeMedium(medium.NewSimMedium(medium.KindWifiLAN, upgradeNetwork))
	req.ctrl.SetUpgradeMedium(medium.NewSimMedium(medium.KindWifiLAN, upgradeNetwork))

	if st := adv.ctrl.InitiateBandwidthUpgrade("BBBB"); st != StatusSuccess {
		t.Fatalf("initiate bandwidth upgrade: %v", st)
	}

	advEv := adv.listener.waitFor(t, isBandwidthChanged, 2*time.Second).(BandwidthChangedEvent)
	reqEv := req.listener.waitFor(t, isBandwidthChanged, 2*time.Second).(BandwidthChangedEvent)
	if advEv.NewMedium != medium.KindWifiLAN.String() || reqEv.NewMedium != medium.KindWifiLAN.String() {
		t.Fatalf("unexpected post-upgrade mediums: adv=%v req=%v", advEv.NewMedium, reqEv.NewMedium)
	}

	// The upgraded channel must still carry payloads end to end.
	want := []byte("post-upgrade")
	if st := req.ctrl.SendPayload([]string{"AAAA"}, payload.NewBytes(want)); st != StatusSuccess {
		t.Fatalf("send payload after upgrade: %v", st)
	}
	ev := adv.listener.waitFor(t, isPayload, 2*time.Second).(PayloadEvent)
	if string(ev.Data) != string(want) {
		t.Fatalf("payload lost across bandwidth upgrade: %+v", ev)
	}
}
