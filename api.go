package nearby

import "nearby/payload"

// AcceptConnection accepts endpointID from PENDING_AUTH; the connection
// becomes ESTABLISHED once both sides have accepted (spec §4.6).
func (c *Core) AcceptConnection(endpointID string) Status {
	return c.ctrl.AcceptConnection(endpointID)
}

// RejectConnection rejects endpointID from PENDING_AUTH.
func (c *Core) RejectConnection(endpointID string) Status {
	return c.ctrl.RejectConnection(endpointID)
}

// InitiateBandwidthUpgrade starts the 5-step medium-swap sequence
// against the medium installed with SetUpgradeMedium.
func (c *Core) InitiateBandwidthUpgrade(endpointID string) Status {
	return c.ctrl.InitiateBandwidthUpgrade(endpointID)
}

// SendPayload moves p to every currently-ESTABLISHED endpoint in
// endpointIDs; endpoints not connected are silently skipped, and
// StatusNotConnectedToEndpoint is returned when none of them is connected.
func (c *Core) SendPayload(endpointIDs []string, p payload.Payload) Status {
	return c.ctrl.SendPayload(endpointIDs, p)
}

// CancelPayload cancels an in-flight send.
func (c *Core) CancelPayload(id payload.ID, endpointIDs []string) Status {
	return c.ctrl.CancelPayload(id, endpointIDs)
}

// DisconnectFromEndpoint tears an established (or pending) connection
// down from the local side and forgets it as a discovered endpoint.
func (c *Core) DisconnectFromEndpoint(endpointID string) Status {
	c.mu.Lock()
	delete(c.discovered, endpointID)
	c.mu.Unlock()
	return c.ctrl.DisconnectFromEndpoint(endpointID)
}

// StopAllEndpoints tears every connection down.
func (c *Core) StopAllEndpoints() {
	c.ctrl.StopAllEndpoints()
}
