package medium

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestScanFindsExistingAdvertisement(t *testing.T) {
	net := NewSimNetwork()
	adv := NewSimMedium(KindBluetooth, net)
	if err := adv.Advertise("svc", "ep-1", []byte("alice"), "sim://BLUETOOTH/1"); err != nil {
		t.Fatalf("advertise: %v", err)
	}

	scanner := NewSimMedium(KindBluetooth, net)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	found := make(chan Advertisement, 4)
	if err := scanner.Scan(ctx, "svc", func(ad Advertisement) { found <- ad }, func(string) {}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	select {
	case ad := <-found:
		if ad.EndpointID != "ep-1" || string(ad.EndpointName) != "alice" {
			t.Fatalf("unexpected advertisement: %+v", ad)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for advertisement")
	}
}

func TestScanIgnoresOtherServiceIDs(t *testing.T) {
	net := NewSimNetwork()
	adv := NewSimMedium(KindBluetooth, net)
	if err := adv.Advertise("svc-a", "ep-1", nil, "sim://BLUETOOTH/1"); err != nil {
		t.Fatalf("advertise: %v", err)
	}

	scanner := NewSimMedium(KindBluetooth, net)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	found := make(chan Advertisement, 4)
	if err := scanner.Scan(ctx, "svc-b", func(ad Advertisement) { found <- ad }, func(string) {}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	select {
	case ad := <-found:
		t.Fatalf("unexpected advertisement for unrelated service: %+v", ad)
	case <-time.After(scanPollInterval * 5):
	}
}

func TestStopAdvertisingRemovesFromDirectory(t *testing.T) {
	net := NewSimNetwork()
	adv := NewSimMedium(KindBluetooth, net)
	if err := adv.Advertise("svc", "ep-1", nil, "sim://BLUETOOTH/1"); err != nil {
		t.Fatalf("advertise: %v", err)
	}
	if err := adv.StopAdvertising(); err != nil {
		t.Fatalf("stop advertising: %v", err)
	}

	if snapshot := net.snapshotAdverts("svc"); len(snapshot) != 0 {
		t.Fatalf("want empty directory after StopAdvertising, got %v", snapshot)
	}
}

func TestScanReportsLostAdvertisement(t *testing.T) {
	net := NewSimNetwork()
	adv := NewSimMedium(KindBluetooth, net)
	if err := adv.Advertise("svc", "ep-1", nil, "sim://BLUETOOTH/1"); err != nil {
		t.Fatalf("advertise: %v", err)
	}

	scanner := NewSimMedium(KindBluetooth, net)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var sawFound bool
	lost := make(chan string, 4)
	err := scanner.Scan(ctx, "svc", func(ad Advertisement) {
		mu.Lock()
		sawFound = true
		mu.Unlock()
	}, func(endpointID string) { lost <- endpointID })
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	// Wait for the first sighting before the advertiser disappears, so the
	// tracker has an entity to later report lost.
	deadline := time.After(time.Second)
	for {
		mu.Lock()
		ok := sawFound
		mu.Unlock()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for initial sighting")
		case <-time.After(time.Millisecond):
		}
	}

	if err := adv.StopAdvertising(); err != nil {
		t.Fatalf("stop advertising: %v", err)
	}

	select {
	case endpointID := <-lost:
		if endpointID != "ep-1" {
			t.Fatalf("want ep-1 lost, got %s", endpointID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lost callback")
	}
}

var _ Scanner = (*SimMedium)(nil)
