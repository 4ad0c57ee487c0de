package main

import (
	"fmt"
	"strings"

	"nearby/medium"
	"nearby/pcp"
)

// parseStrategy maps a config/flag string to a pcp.Strategy, the
// reverse of pcp.Strategy.String(). internal/config stores strategies
// and mediums as strings rather than typed values precisely so this
// package is the only one that needs to know the mapping.
func parseStrategy(s string) (pcp.Strategy, error) {
	switch strings.ToUpper(s) {
	case "P2P_CLUSTER":
		return pcp.StrategyP2PCluster, nil
	case "P2P_STAR":
		return pcp.StrategyP2PStar, nil
	case "P2P_POINT_TO_POINT":
		return pcp.StrategyP2PPointToPoint, nil
	default:
		return pcp.StrategyUnknown, fmt.Errorf("unknown strategy %q", s)
	}
}

// parseMediums maps a comma-separated medium-kind list to medium.Kind
// values, skipping unrecognized names. BLE and WEB_RTC are recognized
// here even though newPlatformMedium has no binding for them.
func parseMediums(csv string) []medium.Kind {
	var out []medium.Kind
	for _, part := range strings.Split(csv, ",") {
		switch strings.ToUpper(strings.TrimSpace(part)) {
		case "BLE":
			out = append(out, medium.KindBLE)
		case "BLUETOOTH":
			out = append(out, medium.KindBluetooth)
		case "WEB_RTC":
			out = append(out, medium.KindWebRTC)
		case "WIFI_LAN":
			out = append(out, medium.KindWifiLAN)
		}
	}
	return out
}
