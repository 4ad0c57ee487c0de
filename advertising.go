package nearby

import (
	"context"

	"nearby/medium"
)

// bestMedium returns the highest-throughput registered medium among
// allowed (medium.PreferenceOrder, descending), or every registered
// medium if allowed is empty — StartAdvertising's and StartDiscovery's
// zero-value AllowedMediums means "any medium this node has."
func (c *Core) bestMedium(allowed []medium.Kind) (medium.PlatformMedium, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var want map[medium.Kind]bool
	if len(allowed) > 0 {
		want = make(map[medium.Kind]bool, len(allowed))
		for _, k := range allowed {
			want[k] = true
		}
	}
	for i := len(medium.PreferenceOrder) - 1; i >= 0; i-- {
		k := medium.PreferenceOrder[i]
		if want != nil && !want[k] {
			continue
		}
		if m, ok := c.mediums[k]; ok {
			return m, true
		}
	}
	return nil, false
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

// StartAdvertising picks the best registered medium among opts'
// AllowedMediums, listens on it, and begins accepting inbound connection
// requests. If the medium also implements medium.Scanner, its presence
// is broadcast under serviceID so discovering peers can find it.
func (c *Core) StartAdvertising(serviceID string, info EndpointInfo, opts AdvertisingOptions) Status {
	if status := c.ctrl.StartAdvertising(serviceID, opts); status != StatusSuccess {
		return status
	}

	m, ok := c.bestMedium(opts.AllowedMediums)
	if !ok {
		c.ctrl.StopAdvertising()
		return StatusError
	}
	ln, err := m.Listen(context.Background())
	if err != nil {
		c.ctrl.StopAdvertising()
		c.log.Warn("advertising listen failed", "medium", m.Kind(), "err", err)
		return statusForMediumError(m.Kind())
	}

	if scanner, ok := m.(medium.Scanner); ok {
		if err := scanner.Advertise(serviceID, c.ctrl.SelfEndpointID(), info, ln.Addr()); err != nil {
			c.log.Warn("advertise broadcast failed", "medium", m.Kind(), "err", err)
		}
	}

	acceptCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.serviceID = serviceID
	c.advMedium = m
	c.advLn = ln
	c.advCancel = cancel
	c.mu.Unlock()

	go c.acceptLoop(acceptCtx, ln, m.Kind())
	return StatusSuccess
}

// acceptLoop accepts inbound sockets for one advertised medium, handing
// each to the Controller on its own goroutine (AcceptIncoming blocks on
// one read to learn the caller's endpoint id).
func (c *Core) acceptLoop(ctx context.Context, ln medium.Listener, kind medium.Kind) {
	for {
		ch, err := ln.Accept(ctx)
		if err != nil {
			return
		}
		go c.ctrl.AcceptIncoming(ch, kind)
	}
}

// AdvertisedAddr returns the address this node is currently listening
// on, for out-of-band sharing (e.g. rendering as a QR code) with a peer
// that will call InjectEndpoint. Returns ("", false) when not
// advertising.
func (c *Core) AdvertisedAddr() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.advLn == nil {
		return "", false
	}
	return c.advLn.Addr(), true
}

// StopAdvertising withdraws the advertisement and stops accepting new
// inbound connections; already-established connections are unaffected.
func (c *Core) StopAdvertising() {
	c.ctrl.StopAdvertising()

	c.mu.Lock()
	m, ln, cancel := c.advMedium, c.advLn, c.advCancel
	c.advMedium, c.advLn, c.advCancel = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ln != nil {
		_ = ln.Close()
	}
	if scanner, ok := m.(medium.Scanner); ok {
		_ = scanner.StopAdvertising()
	}
}
