// Command nearbyd is a reference daemon wiring the nearby facade to real
// PlatformMediums: Wi-Fi LAN over QUIC, Bluetooth-classic substitute over
// websockets, and a local HTTP debug API. Grounded on server/main.go's
// flag-driven bootstrap and graceful-shutdown idiom.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"nearby"
	"nearby/internal/config"
	"nearby/internal/store"
	"nearby/medium"
)

func main() {
	cfg := config.Load()

	serviceID := flag.String("service-id", cfg.ServiceID, "service id to advertise/discover under")
	endpointName := flag.String("endpoint-name", cfg.EndpointName, "human-readable name shown to peers")
	strategyFlag := flag.String("strategy", cfg.Strategy, "P2P_CLUSTER, P2P_STAR, or P2P_POINT_TO_POINT")
	mediumsFlag := flag.String("mediums", joinMediums(cfg.AllowedMediums), "comma-separated mediums to enable: BLUETOOTH,WIFI_LAN")
	hostname := flag.String("hostname", "localhost", "hostname for the Wi-Fi LAN medium's self-signed certificate")
	dbPath := flag.String("db", cfg.KnownEndpointsDBPath, "known-endpoints sqlite path (empty disables persistence)")
	httpAddr := flag.String("http-addr", ":8181", "local HTTP debug API address (empty disables it)")
	advertise := flag.Bool("advertise", true, "start advertising on launch")
	discover := flag.Bool("discover", true, "start discovering on launch")
	flag.Parse()

	strategy, err := parseStrategy(*strategyFlag)
	if err != nil {
		log.Fatalf("[nearbyd] %v", err)
	}
	mediums := parseMediums(*mediumsFlag)
	if len(mediums) == 0 {
		log.Fatalf("[nearbyd] no usable mediums in -mediums=%q", *mediumsFlag)
	}

	var st *store.Store
	if *dbPath != "" {
		st, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("[nearbyd] open store: %v", err)
		}
		defer st.Close()
	}

	logger := slog.Default()
	core := nearby.NewCore("", st, logger)
	log.Printf("[nearbyd] endpoint id: %s", core.SelfEndpointID())

	for _, kind := range mediums {
		m, err := newPlatformMedium(kind, *hostname)
		if err != nil {
			log.Printf("[nearbyd] skipping medium %s: %v", kind, err)
			continue
		}
		core.RegisterMedium(m)
	}
	if status := core.SetUpgradeMedium(medium.KindWifiLAN); status != nearby.StatusSuccess {
		log.Printf("[nearbyd] bandwidth upgrade unavailable: no Wi-Fi LAN medium registered")
	}
	controller := &daemonController{core: core}
	core.SetListener(controller)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[nearbyd] shutting down...")
		cancel()
	}()

	if *advertise {
		opts := nearby.AdvertisingOptions{Strategy: strategy, AllowedMediums: mediums}
		if status := core.StartAdvertising(*serviceID, nearby.EndpointInfo(*endpointName), opts); status != nearby.StatusSuccess {
			log.Printf("[nearbyd] start advertising: %v", status)
		}
	}
	if *discover {
		opts := nearby.DiscoveryOptions{Strategy: strategy, AllowedMediums: mediums}
		if status := core.StartDiscovery(*serviceID, opts, controller); status != nearby.StatusSuccess {
			log.Printf("[nearbyd] start discovery: %v", status)
		}
	}

	if *httpAddr != "" {
		api := newDebugAPI(core)
		go api.Run(ctx, *httpAddr)
		log.Printf("[nearbyd] debug api listening on %s", *httpAddr)
	}

	<-ctx.Done()
	core.Close()
}

func newPlatformMedium(kind medium.Kind, hostname string) (medium.PlatformMedium, error) {
	switch kind {
	case medium.KindWifiLAN:
		return medium.NewWifiLanMedium(hostname), nil
	case medium.KindBluetooth:
		return medium.NewBluetoothMedium(), nil
	default:
		// BLE has no OS-radio binding in this environment, and WebRTC
		// needs a caller-supplied medium.SignalTransport this daemon does
		// not invent one of (see medium.SignalTransport's doc comment);
		// both stay unavailable in the reference daemon.
		return nil, errUnsupportedMedium(kind)
	}
}

type unsupportedMediumError struct{ kind medium.Kind }

func (e unsupportedMediumError) Error() string {
	return "medium " + e.kind.String() + " has no reference-daemon binding"
}

func errUnsupportedMedium(kind medium.Kind) error { return unsupportedMediumError{kind: kind} }

func joinMediums(mediums []string) string {
	out := ""
	for i, m := range mediums {
		if i > 0 {
			out += ","
		}
		out += m
	}
	return out
}

// daemonController logs every lifecycle event and auto-accepts/auto-
// connects, matching a zero-configuration LAN-party demo. A real client
// would route InitiatedEvent to a user prompt (show the auth token,
// accept or reject) instead of accepting unconditionally.
type daemonController struct{ core *nearby.Core }

func (d *daemonController) OnEvent(ev nearby.Event) {
	switch e := ev.(type) {
	case nearby.InitiatedEvent:
		log.Printf("[nearbyd] connection initiated: %s (auth token %s)", e.EndpointID, e.AuthToken)
		if status := d.core.AcceptConnection(e.EndpointID); status != nearby.StatusSuccess {
			log.Printf("[nearbyd] accept %s: %v", e.EndpointID, status)
		}
	case nearby.AcceptedEvent:
		log.Printf("[nearbyd] connection established: %s", e.EndpointID)
	case nearby.RejectedEvent:
		log.Printf("[nearbyd] connection rejected: %s (%s)", e.EndpointID, e.Status)
	case nearby.DisconnectedEvent:
		log.Printf("[nearbyd] disconnected: %s", e.EndpointID)
	case nearby.BandwidthChangedEvent:
		log.Printf("[nearbyd] bandwidth upgraded: %s -> %s", e.EndpointID, e.NewMedium)
	case nearby.PayloadEvent:
		log.Printf("[nearbyd] payload received from %s: %d bytes", e.EndpointID, e.Size)
	}
}

func (d *daemonController) OnEndpointFound(fe nearby.FoundEndpoint) {
	log.Printf("[nearbyd] found endpoint %s (%s)", fe.EndpointID, fe.EndpointName)
	opts := nearby.ConnectionOptions{AllowedMediums: []medium.Kind{fe.Medium}}
	if status := d.core.RequestConnection(fe.EndpointID, nil, opts); status != nearby.StatusSuccess {
		log.Printf("[nearbyd] request connection to %s: %v", fe.EndpointID, status)
	}
}

func (d *daemonController) OnEndpointLost(endpointID string) {
	log.Printf("[nearbyd] lost endpoint %s", endpointID)
}
