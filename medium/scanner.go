package medium

import "context"

// Advertisement is one endpoint observed while scanning for a service id,
// matching spec §6's BLE advertise(bytes)/scan(service_uuid) surface
// generalized to any medium capable of broadcast discovery.
type Advertisement struct {
	EndpointID   string
	EndpointName []byte
	Addr         string
	Kind         Kind
}

// Scanner is an optional capability a PlatformMedium may implement in
// addition to Dialer/Listen: the ability to broadcast this node's own
// presence and to watch for peers broadcasting the same service id.
// Wi-Fi LAN and WebRTC never implement it — both require an address
// already known from some other channel before Dial makes sense — so
// callers type-assert for it rather than requiring it on PlatformMedium.
type Scanner interface {
	// Advertise begins broadcasting addr (and endpointName) under
	// serviceID until StopAdvertising is called. A medium advertises at
	// most one (serviceID, endpointID) pair at a time.
	Advertise(serviceID, endpointID string, endpointName []byte, addr string) error
	StopAdvertising() error

	// Scan watches for other endpoints advertising serviceID until ctx is
	// canceled, invoking found/lost as the visible set changes. It
	// returns once the scan loop has started; found/lost calls continue
	// asynchronously until ctx is done.
	Scan(ctx context.Context, serviceID string, found func(Advertisement), lost func(endpointID string)) error
}
