// Package medium defines the PlatformMedium capability seam the core
// consumes (spec §6's "PlatformMediums capability surface") along with
// concrete implementations over real transports. The core never knows
// which Kind backs a given Channel — it only ever sees a framed byte
// channel — matching the spec's requirement that platform radio drivers
// stay invisible to the protocol engine.
package medium

import (
	"context"
	"io"
)

// Kind tags a medium's throughput class. Values ascend with throughput:
// BLE is the slowest, Wi-Fi LAN the fastest.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindBLE
	KindBluetooth
	KindWebRTC
	KindWifiLAN
)

// PreferenceOrder lists mediums from lowest to highest throughput. It
// drives medium selection for advertising and discovery and the default
// allowed-medium list; a bandwidth upgrade does not walk it but targets
// the one medium installed with SetUpgradeMedium.
var PreferenceOrder = []Kind{KindBLE, KindBluetooth, KindWebRTC, KindWifiLAN}

func (k Kind) String() string {
	switch k {
	case KindBLE:
		return "BLE"
	case KindBluetooth:
		return "BLUETOOTH"
	case KindWebRTC:
		return "WEB_RTC"
	case KindWifiLAN:
		return "WIFI_LAN"
	default:
		return "UNKNOWN"
	}
}

// Channel is a full-duplex byte pipe to one remote endpoint over one
// medium. It is the concrete thing an endpoint.Channel wraps; mediums
// that are intrinsically message-oriented (BLE L2CAP, WebRTC data
// channels) still satisfy io.Reader/io.Writer, they just never need the
// wire package's length prefix applied on top.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
	// FramesAreMessages reports whether a single Read call already
	// returns exactly one wire frame (true for BLE/WebRTC) or whether the
	// caller must apply wire.ReadFrame's length-prefix framing on top
	// (false for stream sockets like Wi-Fi LAN TCP or Bluetooth RFCOMM).
	FramesAreMessages() bool
	RemoteAddr() string
}

// Listener accepts inbound connections for one medium.
type Listener interface {
	Accept(ctx context.Context) (Channel, error)
	Addr() string
	Close() error
}

// Dialer opens an outbound connection for one medium.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Channel, error)
}

// PlatformMedium is the seam a single radio medium implements: the
// subset of the spec's PlatformMediums surface relevant to that medium.
// A real per-OS binding would implement this against GATT/NSD/RFCOMM; the
// implementations in this package implement it against real
// general-purpose transports (pion/webrtc, quic-go, gorilla/websocket) or,
// for tests, an in-memory simulator.
type PlatformMedium interface {
	Kind() Kind
	Dialer
	// Listen begins accepting inbound connections and returns a Listener
	// plus the address/advertisement metadata remote peers need to dial
	// in (an UpgradePathInfo-shaped address for Wi-Fi LAN/WebRTC, or a
	// device name/service UUID for BLE/Bluetooth).
	Listen(ctx context.Context) (Listener, error)
}
