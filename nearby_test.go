package nearby

import (
	"sync"
	"testing"
	"time"

	"nearby/medium"
	"nearby/payload"
)

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

func isInitiated(ev Event) bool    { _, ok := ev.(InitiatedEvent); return ok }
func isAccepted(ev Event) bool     { _, ok := ev.(AcceptedEvent); return ok }
func isRejected(ev Event) bool     { _, ok := ev.(RejectedEvent); return ok }
func isDisconnected(ev Event) bool { _, ok := ev.(DisconnectedEvent); return ok }
func isPayload(ev Event) bool      { _, ok := ev.(PayloadEvent); return ok }

type recordingDiscovery struct {
	mu    sync.Mutex
	found chan FoundEndpoint
	lost  chan string
}

func newRecordingDiscovery() *recordingDiscovery {
	return &recordingDiscovery{found: make(chan FoundEndpoint, 16), lost: make(chan string, 16)}
}

func (r *recordingDiscovery) OnEndpointFound(fe FoundEndpoint) { r.found <- fe }
func (r *recordingDiscovery) OnEndpointLost(id string)         { r.lost <- id }

// establishOverDiscovery drives both sides of a discovery-based connect to
// ESTABLISHED and returns once both have seen AcceptedEvent.
func establishOverDiscovery(t *testing.T) (adv, req *Core, advL, reqL *recordingListener) {
	t.Helper()
	network := medium.NewSimNetwork()

	advL = newRecordingListener()
	adv = NewCore("AAAA", nil, nil)
	adv.SetListener(advL)
	adv.RegisterMedium(medium.NewSimMedium(medium.KindBluetooth, network))

	reqL = newRecordingListener()
	req = NewCore("BBBB", nil, nil)
	req.SetListener(reqL)
	req.RegisterMedium(medium.NewSimMedium(medium.KindBluetooth, network))

	advOpts := AdvertisingOptions{Strategy: StrategyP2PCluster, AllowedMediums: []medium.Kind{medium.KindBluetooth}}
	if status := adv.StartAdvertising("svc", EndpointInfo("desk"), advOpts); status != StatusSuccess {
		t.Fatalf("StartAdvertising: %v", status)
	}

	discL := newRecordingDiscovery()
	discOpts := DiscoveryOptions{Strategy: StrategyP2PCluster, AllowedMediums: []medium.Kind{medium.KindBluetooth}}
	if status := req.StartDiscovery("svc", discOpts, discL); status != StatusSuccess {
		t.Fatalf("StartDiscovery: %v", status)
	}

	var fe FoundEndpoint
	select {
	case fe = <-discL.found:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for endpoint found")
	}
	if fe.EndpointID != "AAAA" {
		t.Fatalf("found wrong endpoint: %+v", fe)
	}

	connOpts := ConnectionOptions{Strategy: StrategyP2PCluster, AllowedMediums: []medium.Kind{medium.KindBluetooth}}
	if status := req.RequestConnection(fe.EndpointID, EndpointInfo("laptop"), connOpts); status != StatusSuccess {
		t.Fatalf("RequestConnection: %v", status)
	}

	advL.waitFor(t, isInitiated, time.Second)
	reqL.waitFor(t, isInitiated, time.Second)

	if status := adv.AcceptConnection("BBBB"); status != StatusSuccess {
		t.Fatalf("adv AcceptConnection: %v", status)
	}
	if status := req.AcceptConnection("AAAA"); status != StatusSuccess {
		t.Fatalf("req AcceptConnection: %v", status)
	}

	advL.waitFor(t, isAccepted, time.Second)
	reqL.waitFor(t, isAccepted, time.Second)
	return adv, req, advL, reqL
}

func TestAdvertiseDiscoverConnect(t *testing.T) {
	adv, req, _, _ := establishOverDiscovery(t)
	defer adv.Close()
	defer req.Close()
}

func TestPayloadOverFacade(t *testing.T) {
	adv, req, advL, _ := establishOverDiscovery(t)
	defer adv.Close()
	defer req.Close()

	p := payload.NewBytes([]byte("hello facade"))
	if status := req.SendPayload([]string{"AAAA"}, p); status != StatusSuccess {
		t.Fatalf("SendPayload: %v", status)
	}

	ev := advL.waitFor(t, isPayload, time.Second)
	pe := ev.(PayloadEvent)
	if string(pe.Data) != "hello facade" {
		t.Fatalf("unexpected payload data: %q", pe.Data)
	}
}

func TestInjectEndpointConnect(t *testing.T) {
	network := medium.NewSimNetwork()

	advL := newRecordingListener()
	adv := NewCore("CCCC", nil, nil)
	adv.SetListener(advL)
	adv.RegisterMedium(medium.NewSimMedium(medium.KindBluetooth, network))
	defer adv.Close()

	advOpts := AdvertisingOptions{Strategy: StrategyP2PPointToPoint, AllowedMediums: []medium.Kind{medium.KindBluetooth}}
	if status := adv.StartAdvertising("svc", EndpointInfo("desk"), advOpts); status != StatusSuccess {
		t.Fatalf("StartAdvertising: %v", status)
	}
	addr, ok := adv.AdvertisedAddr()
	if !ok {
		t.Fatal("expected an advertised address")
	}

	reqL := newRecordingListener()
	req := NewCore("DDDD", nil, nil)
	req.SetListener(reqL)
	req.RegisterMedium(medium.NewSimMedium(medium.KindBluetooth, network))
	defer req.Close()

	discOpts := DiscoveryOptions{Strategy: StrategyP2PPointToPoint}
	if status := req.StartDiscovery("svc", discOpts, nil); status != StatusSuccess {
		t.Fatalf("StartDiscovery: %v", status)
	}

	oob := OutOfBandEndpoint{EndpointID: "CCCC", EndpointName: []byte("desk"), Addr: addr}
	if status := req.InjectEndpoint("svc", oob); status != StatusSuccess {
		t.Fatalf("InjectEndpoint: %v", status)
	}

	connOpts := ConnectionOptions{Strategy: StrategyP2PPointToPoint, IsOutOfBandConnection: true, AllowedMediums: []medium.Kind{medium.KindBluetooth}}
	if status := req.RequestConnection("CCCC", EndpointInfo("laptop"), connOpts); status != StatusSuccess {
		t.Fatalf("RequestConnection: %v", status)
	}

	advL.waitFor(t, isInitiated, time.Second)
	reqL.waitFor(t, isInitiated, time.Second)
}

func TestRejectConnectionFacade(t *testing.T) {
	network := medium.NewSimNetwork()

	advL := newRecordingListener()
	adv := NewCore("EEEE", nil, nil)
	adv.SetListener(advL)
	adv.RegisterMedium(medium.NewSimMedium(medium.KindBluetooth, network))
	defer adv.Close()

	reqL := newRecordingListener()
	req := NewCore("FFFF", nil, nil)
	req.SetListener(reqL)
	req.RegisterMedium(medium.NewSimMedium(medium.KindBluetooth, network))
	defer req.Close()

	opts := AdvertisingOptions{Strategy: StrategyP2PCluster, AllowedMediums: []medium.Kind{medium.KindBluetooth}}
	if status := adv.StartAdvertising("svc", EndpointInfo("desk"), opts); status != StatusSuccess {
		t.Fatalf("StartAdvertising: %v", status)
	}
	discL := newRecordingDiscovery()
	if status := req.StartDiscovery("svc", DiscoveryOptions{Strategy: StrategyP2PCluster, AllowedMediums: []medium.Kind{medium.KindBluetooth}}, discL); status != StatusSuccess {
		t.Fatalf("StartDiscovery: %v", status)
	}
	fe := <-discL.found

	connOpts := ConnectionOptions{Strategy: StrategyP2PCluster, AllowedMediums: []medium.Kind{medium.KindBluetooth}}
	if status := req.RequestConnection(fe.EndpointID, EndpointInfo("laptop"), connOpts); status != StatusSuccess {
		t.Fatalf("RequestConnection: %v", status)
	}
	advL.waitFor(t, isInitiated, time.Second)
	reqL.waitFor(t, isInitiated, time.Second)

	if status := adv.RejectConnection("FFFF"); status != StatusSuccess {
		t.Fatalf("RejectConnection: %v", status)
	}

	advEv := advL.waitFor(t, isRejected, time.Second).(RejectedEvent)
	reqEv := reqL.waitFor(t, isRejected, time.Second).(RejectedEvent)
	if advEv.Status != StatusConnectionRejected || reqEv.Status != StatusConnectionRejected {
		t.Fatalf("unexpected statuses: adv=%v req=%v", advEv.Status, reqEv.Status)
	}
}

func TestDisconnectFromEndpointFacade(t *testing.T) {
	adv, req, advL, reqL := establishOverDiscovery(t)
	defer adv.Close()
	defer req.Close()

	adv.DisconnectFromEndpoint("BBBB")

	advL.waitFor(t, isDisconnected, time.Second)
	reqL.waitFor(t, isDisconnected, time.Second)

	if status := req.RequestConnection("AAAA", EndpointInfo("laptop"), ConnectionOptions{}); status != StatusEndpointUnknown {
		t.Fatalf("expected StatusEndpointUnknown after disconnect forgot the endpoint, got %v", status)
	}
}
