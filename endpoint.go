package nearby

import (
	"nearby/medium"
	"nearby/pcp"
)

// EndpointInfo is the human-readable blob a device advertises alongside
// its endpoint id (spec §3, ≤131 bytes).
type EndpointInfo = pcp.EndpointInfo

// FoundEndpoint is what a DiscoveryListener learns about a peer, either
// from a real scan or from InjectEndpoint's out-of-band path. addr is
// unexported: callers never dial it directly, only RequestConnection
// does, keeping the medium.Channel/medium.Kind pairing that produced it
// out of the public surface.
type FoundEndpoint struct {
	EndpointID   string
	EndpointName []byte
	Medium       medium.Kind

	addr string
}

// OutOfBandEndpoint is the out-of-band metadata InjectEndpoint accepts
// for a Bluetooth-classic pairing learned outside of BLE scanning (a QR
// code, NFC tap, or a manually entered device address).
type OutOfBandEndpoint struct {
	EndpointID   string
	EndpointName []byte
	Addr         string
}

// DiscoveryListener receives endpoint visibility changes while
// discovering, driven by medium.Scanner polling and
// discovery.LostEntityTracker underneath (see discovery.go).
type DiscoveryListener interface {
	OnEndpointFound(FoundEndpoint)
	OnEndpointLost(endpointID string)
}
