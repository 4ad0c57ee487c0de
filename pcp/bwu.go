package pcp

import (
	"context"
	"time"

	"nearby/channel"
	"nearby/medium"
	"nearby/wire"
)

// bwuState tracks one in-flight bandwidth upgrade for an endpoint. Only
// the initiating side needs to remember its listener between sending
// UPGRADE_PATH_AVAILABLE and accepting the responder's dial-back.
type bwuState struct {
	listener medium.Listener
}

// InitiateBandwidthUpgrade starts the 5-step upgrade sequence from spec
// §4.6 against whatever PlatformMedium was installed with
// SetUpgradeMedium. A no-op (kSuccess) if the connection is already on
// that medium.
func (c *Controller) InitiateBandwidthUpgrade(endpointID string) Status {
	c.mu.Lock()
	pc, ok := c.conns[endpointID]
	um := c.upgradeMedium
	c.mu.Unlock()
	if !ok || pc.state != StateEstablished {
		return StatusNotConnectedToEndpoint
	}
	if um == nil {
		return StatusError
	}
	if pc.medium == um.Kind() {
		return StatusSuccess
	}

	ln, err := um.Listen(context.Background())
	if err != nil {
		c.log.Warn("bwu listen failed", "endpoint_id", endpointID, "err", err)
		return statusForMediumError(um.Kind())
	}

	c.mu.Lock()
	c.bwu[endpointID] = &bwuState{listener: ln}
	c.mu.Unlock()

	c.endpoints.Send(endpointID, wire.Frame{
		Type: wire.FrameBandwidthUpgradeNegotiation,
		BandwidthUpgradeNegotiation: &wire.BandwidthUpgradeNegotiation{
			Event:      wire.BwuUpgradePathAvailable,
			EndpointID: c.selfEndpointID,
			Path:       wire.UpgradePathInfo{Medium: uint8(um.Kind()), IPAddress: ln.Addr()},
		},
	})

	go c.acceptUpgradedChannel(endpointID, ln, pc, um.Kind())
	return StatusSuccess
}

// acceptUpgradedChannel is step 3/4 from the initiator's side: accept the
// responder's dial-back, read its CLIENT_INTRODUCTION, then swap.
func (c *Controller) acceptUpgradedChannel(endpointID string, ln medium.Listener, pc *pendingConn, newMedium medium.Kind) {
	raw, err := ln.Accept(context.Background())
	_ = ln.Close()
	c.mu.Lock()
	delete(c.bwu, endpointID)
	c.mu.Unlock()
	if err != nil {
		c.log.Warn("bwu accept failed", "endpoint_id", endpointID, "err", err)
		return
	}

	newCh := channel.New(endpointID, raw, newMedium, c.log)
	if pc.encCtx != nil {
		newCh.EnableEncryption(pc.encCtx)
	}
	f, err := newCh.Read()
	if err != nil || f.Type != wire.FrameBandwidthUpgradeNegotiation ||
		f.BandwidthUpgradeNegotiation == nil || f.BandwidthUpgradeNegotiation.Event != wire.BwuClientIntroduction {
		_ = newCh.Close(channel.ReasonIOError)
		return
	}

	c.completeSwap(endpointID, pc, newCh)
}

// OnBandwidthUpgradeNegotiation is the responder's entry point: on
// UPGRADE_PATH_AVAILABLE it dials back and performs steps 3/4 from its
// side. UPGRADE_FAILURE just surfaces the failed attempt; the
// LAST_WRITE_TO_PRIOR_CHANNEL/SAFE_TO_CLOSE_PRIOR_CHANNEL events are
// sent as notifications during completeSwap rather than driving further
// state here, since the side performing the swap does so synchronously.
func (c *Controller) OnBandwidthUpgradeNegotiation(endpointID string, f wire.BandwidthUpgradeNegotiation) {
	switch f.Event {
	case wire.BwuUpgradePathAvailable:
		c.dialUpgradedChannel(endpointID, f)
	case wire.BwuUpgradeFailure:
		c.log.Warn("peer reported bwu failure", "endpoint_id", endpointID)
	}
}

// dialUpgradedChannel is step 3 from the responder's side.
func (c *Controller) dialUpgradedChannel(endpointID string, f wire.BandwidthUpgradeNegotiation) {
	c.mu.Lock()
	pc, ok := c.conns[endpointID]
	um := c.upgradeMedium
	c.mu.Unlock()
	if !ok || um == nil {
		return
	}

	go func() {
		raw, err := um.Dial(context.Background(), f.Path.IPAddress)
		if err != nil {
			c.log.Warn("bwu dial failed", "endpoint_id", endpointID, "err", err)
			c.endpoints.Send(endpointID, wire.Frame{
				Type: wire.FrameBandwidthUpgradeNegotiation,
				BandwidthUpgradeNegotiation: &wire.BandwidthUpgradeNegotiation{
					Event:      wire.BwuUpgradeFailure,
					EndpointID: c.selfEndpointID,
				},
			})
			return
		}
		newCh := channel.New(endpointID, raw, um.Kind(), c.log)
		if pc.encCtx != nil {
			newCh.EnableEncryption(pc.encCtx)
		}
		intro := wire.Frame{
			Type: wire.FrameBandwidthUpgradeNegotiation,
			BandwidthUpgradeNegotiation: &wire.BandwidthUpgradeNegotiation{
				Event:      wire.BwuClientIntroduction,
				EndpointID: c.selfEndpointID,
			},
		}
		if err := newCh.Write(intro); err != nil {
			_ = newCh.Close(channel.ReasonIOError)
			return
		}
		c.completeSwap(endpointID, pc, newCh)
	}()
}

// completeSwap is step 4/5, shared by both sides: announce last write,
// drain, atomically replace the registered channel, announce safe to
// close, close the old channel, and notify the client.
func (c *Controller) completeSwap(endpointID string, pc *pendingConn, newCh *channel.Channel) {
	c.endpoints.Send(endpointID, wire.Frame{
		Type: wire.FrameBandwidthUpgradeNegotiation,
		BandwidthUpgradeNegotiation: &wire.BandwidthUpgradeNegotiation{
			Event:      wire.BwuLastWriteToPriorChannel,
			EndpointID: c.selfEndpointID,
		},
	})
	<-time.After(bwuDrainDelay)

	old := c.channels.Replace(endpointID, newCh)
	c.endpoints.Register(endpointID, newCh, pc.keepAliveOptions())

	c.mu.Lock()
	pc.ch = newCh
	pc.medium = newCh.GetMedium()
	c.mu.Unlock()

	c.endpoints.Send(endpointID, wire.Frame{
		Type: wire.FrameBandwidthUpgradeNegotiation,
		BandwidthUpgradeNegotiation: &wire.BandwidthUpgradeNegotiation{
			Event:      wire.BwuSafeToClosePriorChannel,
			EndpointID: c.selfEndpointID,
		},
	})
	if old != nil {
		_ = old.Close(channel.ReasonUpgraded)
	}

	c.emit(BandwidthChangedEvent{EndpointID: endpointID, NewMedium: newCh.GetMedium().String()})
}
