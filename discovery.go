package nearby

import (
	"context"

	"nearby/medium"
)

// StartDiscovery scans every registered medium among opts'
// AllowedMediums that implements medium.Scanner, surfacing found/lost
// endpoints to listener. Each medium's Scan call runs its own
// discovery.LostEntityTracker round underneath (medium/sim.go for the
// test medium; a real NSD/BLE scan binding would do the same).
func (c *Core) StartDiscovery(serviceID string, opts DiscoveryOptions, listener DiscoveryListener) Status {
	if status := c.ctrl.StartDiscovery(serviceID, opts); status != StatusSuccess {
		return status
	}

	allowed := opts.AllowedMediums
	if len(allowed) == 0 {
		allowed = medium.PreferenceOrder
	}

	c.mu.Lock()
	c.serviceID = serviceID
	c.discListener = listener
	c.discovered = make(map[string]FoundEndpoint)
	var scanners []medium.Scanner
	for _, k := range allowed {
		if m, ok := c.mediums[k]; ok {
			if s, ok := m.(medium.Scanner); ok {
				scanners = append(scanners, s)
			}
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.discCancel = cancel
	c.mu.Unlock()

	for _, s := range scanners {
		if err := s.Scan(ctx, serviceID, c.onAdvertisementFound, c.onAdvertisementLost); err != nil {
			c.log.Warn("scan failed to start", "err", err)
		}
	}
	return StatusSuccess
}

func (c *Core) onAdvertisementFound(ad medium.Advertisement) {
	if ad.EndpointID == c.ctrl.SelfEndpointID() {
		return
	}
	fe := FoundEndpoint{EndpointID: ad.EndpointID, EndpointName: ad.EndpointName, Medium: ad.Kind, addr: ad.Addr}

	c.mu.Lock()
	_, alreadyKnown := c.discovered[ad.EndpointID]
	c.discovered[ad.EndpointID] = fe
	listener := c.discListener
	c.mu.Unlock()

	if !alreadyKnown && listener != nil {
		listener.OnEndpointFound(fe)
	}
}

func (c *Core) onAdvertisementLost(endpointID string) {
	c.mu.Lock()
	delete(c.discovered, endpointID)
	listener := c.discListener
	c.mu.Unlock()

	if listener != nil {
		listener.OnEndpointLost(endpointID)
	}
}

// StopDiscovery stops scanning every medium and drops the found-endpoint
// table; a subsequent StartDiscovery starts from an empty set exactly as
// spec §4.6 describes for re-entering LISTENING.
func (c *Core) StopDiscovery() {
	c.ctrl.StopDiscovery()

	c.mu.Lock()
	cancel := c.discCancel
	c.discCancel = nil
	c.discListener = nil
	c.discovered = make(map[string]FoundEndpoint)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// InjectEndpoint manually registers a found endpoint from out-of-band
// metadata (a QR code, NFC tap, or manually entered device address),
// bypassing BLE advertise/scan entirely — spec §6's injectEndpoint,
// Bluetooth-classic OOB only.
func (c *Core) InjectEndpoint(serviceID string, oob OutOfBandEndpoint) Status {
	c.mu.Lock()
	if c.serviceID != "" && c.serviceID != serviceID {
		c.mu.Unlock()
		return StatusOutOfOrderAPICall
	}
	fe := FoundEndpoint{
		EndpointID:   oob.EndpointID,
		EndpointName: oob.EndpointName,
		Medium:       medium.KindBluetooth,
		addr:         oob.Addr,
	}
	c.discovered[oob.EndpointID] = fe
	listener := c.discListener
	c.mu.Unlock()

	if listener != nil {
		listener.OnEndpointFound(fe)
	}
	return StatusSuccess
}

// RequestConnection dials the medium a prior found-endpoint notification
// (or InjectEndpoint call) reported endpointID on, then hands the raw
// socket to the Controller to run the handshake over.
func (c *Core) RequestConnection(endpointID string, localInfo EndpointInfo, opts ConnectionOptions) Status {
	c.mu.Lock()
	fe, known := c.discovered[endpointID]
	m, hasMedium := c.mediums[fe.Medium]
	c.mu.Unlock()
	if !known {
		return StatusEndpointUnknown
	}
	if !hasMedium {
		return StatusError
	}

	raw, err := m.Dial(context.Background(), fe.addr)
	if err != nil {
		c.log.Warn("request connection dial failed", "endpoint_id", endpointID, "err", err)
		return statusForMediumError(fe.Medium)
	}
	return c.ctrl.RequestConnection(endpointID, raw, fe.Medium, localInfo, opts)
}
