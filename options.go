// Package nearby is the public facade: one Core per client handle,
// wiring the wire/channel/endpoint/payload/pcp stack underneath to a
// registered set of PlatformMediums. It is the thing a binary like
// cmd/nearbyd imports; everything else in this module is an
// implementation detail reachable only through Core's methods.
package nearby

import (
	"nearby/pcp"
)

// Status mirrors pcp.Status (spec §6's closed result taxonomy): a type
// alias rather than a re-declared enum, so nearby.StatusSuccess and
// pcp.StatusSuccess are the same value and every pcp.Status a Controller
// returns is already a valid nearby.Status.
type Status = pcp.Status

const (
	StatusSuccess                    = pcp.StatusSuccess
	StatusError                      = pcp.StatusError
	StatusOutOfOrderAPICall          = pcp.StatusOutOfOrderAPICall
	StatusAlreadyHaveActiveStrategy  = pcp.StatusAlreadyHaveActiveStrategy
	StatusAlreadyAdvertising         = pcp.StatusAlreadyAdvertising
	StatusAlreadyDiscovering         = pcp.StatusAlreadyDiscovering
	StatusAlreadyListening           = pcp.StatusAlreadyListening
	StatusEndpointIOError            = pcp.StatusEndpointIOError
	StatusEndpointUnknown            = pcp.StatusEndpointUnknown
	StatusConnectionRejected         = pcp.StatusConnectionRejected
	StatusAlreadyConnectedToEndpoint = pcp.StatusAlreadyConnectedToEndpoint
	StatusNotConnectedToEndpoint     = pcp.StatusNotConnectedToEndpoint
	StatusBluetoothError             = pcp.StatusBluetoothError
	StatusBLEError                   = pcp.StatusBLEError
	StatusWifiLanError               = pcp.StatusWifiLanError
	StatusPayloadUnknown             = pcp.StatusPayloadUnknown
	StatusReset                      = pcp.StatusReset
	StatusTimeout                    = pcp.StatusTimeout
	StatusCancelled                  = pcp.StatusCancelled
	StatusUnknown                    = pcp.StatusUnknown
)

// Strategy mirrors pcp.Strategy.
type Strategy = pcp.Strategy

const (
	StrategyP2PCluster      = pcp.StrategyP2PCluster
	StrategyP2PStar         = pcp.StrategyP2PStar
	StrategyP2PPointToPoint = pcp.StrategyP2PPointToPoint
)

// ConnectionOptions, AdvertisingOptions and DiscoveryOptions mirror spec
// §6's option structs exactly; re-exported as aliases so callers never
// need to import nearby/pcp directly.
type ConnectionOptions = pcp.ConnectionOptions
type AdvertisingOptions = pcp.AdvertisingOptions
type DiscoveryOptions = pcp.DiscoveryOptions

// Event and its variants mirror pcp's Event taxonomy (spec §9's
// collapse of absl::any-style callbacks into one struct per kind).
type Event = pcp.Event
type InitiatedEvent = pcp.InitiatedEvent
type AcceptedEvent = pcp.AcceptedEvent
type RejectedEvent = pcp.RejectedEvent
type DisconnectedEvent = pcp.DisconnectedEvent
type BandwidthChangedEvent = pcp.BandwidthChangedEvent
type PayloadEvent = pcp.PayloadEvent
type PayloadProgressEvent = pcp.PayloadProgressEvent

// Listener receives every lifecycle/payload event for one Core, exactly
// as a pcp.Listener would.
type Listener interface {
	OnEvent(Event)
}
