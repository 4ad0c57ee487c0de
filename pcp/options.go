package pcp

import (
	"time"

	"nearby/endpoint"
	"nearby/medium"
)

// EndpointInfo is the human-readable blob a device advertises alongside
// its endpoint id, ≤131 bytes per spec §3.
type EndpointInfo []byte

const maxEndpointInfoLen = 131

// ConnectionOptions mirrors spec §6's field list.
type ConnectionOptions struct {
	Strategy                    Strategy
	AllowedMediums              []medium.Kind
	AutoUpgradeBandwidth        bool
	EnforceTopologyConstraints  bool
	LowPower                    bool
	EnableBluetoothListening    bool
	EnableWebRTCListening       bool
	IsOutOfBandConnection       bool
	RemoteBluetoothMACAddress   string
	FastAdvertisementServiceUUID string
	KeepAliveInterval           time.Duration
	KeepAliveTimeout            time.Duration
}

// normalize validates and fills in defaults per spec §4.6: keep-alive
// tunables fall back to endpoint's defaults when invalid; an
// out-of-band connection collapses its allowed mediums to a single
// medium (Bluetooth, by default); an empty mask expands to all mediums.
func (o ConnectionOptions) normalize() ConnectionOptions {
	ka := endpoint.KeepAliveOptions{Interval: o.KeepAliveInterval, Timeout: o.KeepAliveTimeout}.WithDefaults()
	o.KeepAliveInterval = ka.Interval
	o.KeepAliveTimeout = ka.Timeout

	if o.IsOutOfBandConnection {
		if len(o.AllowedMediums) != 1 {
			o.AllowedMediums = []medium.Kind{medium.KindBluetooth}
		}
		return o
	}
	if len(o.AllowedMediums) == 0 {
		o.AllowedMediums = append([]medium.Kind{}, medium.PreferenceOrder...)
	}
	return o
}

// AdvertisingOptions configures StartAdvertising.
type AdvertisingOptions struct {
	Strategy       Strategy
	AllowedMediums []medium.Kind
	LowPower       bool
}

// DiscoveryOptions configures StartDiscovery.
type DiscoveryOptions struct {
	Strategy       Strategy
	AllowedMediums []medium.Kind
	FastMode       bool
}
