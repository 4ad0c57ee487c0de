package wire

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// MaxEndpointNameLen bounds the endpoint-info length byte in a BLE
// advertisement: one byte of length prefix caps it at 255, but the spec
// additionally restricts endpoint info to 131 bytes across all mediums.
const MaxEndpointNameLen = 131

const bleAdvertisementVersion = 1

// BLEAdvertisement is the per-endpoint advertisement record broadcast
// during fast/slow BLE discovery.
type BLEAdvertisement struct {
	Version        uint8
	PCP            uint8
	ServiceIDHash  [3]byte
	EndpointID     [4]byte
	EndpointName   []byte
	BluetoothMAC   [6]byte
	HasBluetoothMAC bool
}

// IsValid reports whether a reconstructed advertisement satisfies the
// structural constraints this module enforces (version, endpoint name
// length). Invalid advertisements round-trip to the canonical invalid
// zero value rather than causing a decode error, per the spec's
// fail-silently deserialization policy.
func (a BLEAdvertisement) IsValid() bool {
	return a.Version == bleAdvertisementVersion && len(a.EndpointName) <= MaxEndpointNameLen
}

// ToBytes encodes a into the compact v1 BLE advertisement layout:
// [VERSION(3b)|PCP(5b)] [service_id_hash(3)] [endpoint_id(4)]
// [endpoint_name_size(1)] [endpoint_name(n)] [bluetooth_mac(6)?].
func (a BLEAdvertisement) ToBytes() []byte {
	if !a.IsValid() {
		return nil
	}
	size := 1 + 3 + 4 + 1 + len(a.EndpointName)
	if a.HasBluetoothMAC {
		size += 6
	}
	out := make([]byte, 0, size)
	out = append(out, (a.Version<<5)|(a.PCP&0x1f))
	out = append(out, a.ServiceIDHash[:]...)
	out = append(out, a.EndpointID[:]...)
	out = append(out, byte(len(a.EndpointName)))
	out = append(out, a.EndpointName...)
	if a.HasBluetoothMAC {
		out = append(out, a.BluetoothMAC[:]...)
	}
	return out
}

// BLEAdvertisementFromBytes decodes the v1 layout. Per the spec's
// deserialization policy, any structural problem (wrong version, wrong
// length, oversized endpoint name) yields the canonical invalid zero-value
// advertisement rather than an error — callers should test IsValid(), not
// a returned error. The 5-bit PCP field is not validated: every value is
// accepted as decoded.
func BLEAdvertisementFromBytes(b []byte) BLEAdvertisement {
	if len(b) < 1+3+4+1 {
		return BLEAdvertisement{}
	}
	version := b[0] >> 5
	pcp := b[0] & 0x1f
	if version != bleAdvertisementVersion {
		return BLEAdvertisement{}
	}
	off := 1
	var svcHash [3]byte
	copy(svcHash[:], b[off:off+3])
	off += 3
	var epID [4]byte
	copy(epID[:], b[off:off+4])
	off += 4
	nameLen := int(b[off])
	off++
	if nameLen > MaxEndpointNameLen || len(b) < off+nameLen {
		return BLEAdvertisement{}
	}
	name := make([]byte, nameLen)
	copy(name, b[off:off+nameLen])
	off += nameLen

	a := BLEAdvertisement{
		Version:       version,
		PCP:           pcp,
		ServiceIDHash: svcHash,
		EndpointID:    epID,
		EndpointName:  name,
	}
	if remaining := len(b) - off; remaining == 6 {
		copy(a.BluetoothMAC[:], b[off:off+6])
		a.HasBluetoothMAC = true
	} else if remaining != 0 {
		return BLEAdvertisement{}
	}
	return a
}

// ToDeviceName encodes a as a Bluetooth-classic device name: base64 of
// the same v1 layout, minus the MAC field (the MAC is implicit in the
// Bluetooth Classic socket itself).
func (a BLEAdvertisement) ToDeviceName() string {
	a.HasBluetoothMAC = false
	return base64.StdEncoding.EncodeToString(a.ToBytes())
}

// DeviceNameToBLEAdvertisement decodes a Bluetooth-classic device name
// produced by ToDeviceName.
func DeviceNameToBLEAdvertisement(name string) BLEAdvertisement {
	raw, err := base64.StdEncoding.DecodeString(name)
	if err != nil {
		return BLEAdvertisement{}
	}
	return BLEAdvertisementFromBytes(raw)
}

// WifiLanTXTKey is the fixed NSD/mDNS TXT record key carrying the Wi-Fi
// LAN service info.
const WifiLanTXTKey = "n"

// ToServiceInfo encodes a as the base64 Wi-Fi LAN service info string
// carried in the WifiLanTXTKey TXT record.
func (a BLEAdvertisement) ToServiceInfo() string {
	return a.ToDeviceName()
}

// ServiceInfoToBLEAdvertisement is the Wi-Fi LAN counterpart of
// DeviceNameToBLEAdvertisement.
func ServiceInfoToBLEAdvertisement(info string) BLEAdvertisement {
	return DeviceNameToBLEAdvertisement(info)
}

// AdvertisementHeaderSlots bounds how many service ids may share one
// advertisement header's Bloom filter.
const AdvertisementHeaderSlots = 1 << 5 // 5-bit num_slots field

// BloomFilterByteLength is the fixed size of the service-id Bloom filter
// carried in an advertisement header.
const BloomFilterByteLength = 10

// AdvertisementHeader packages multiple service-id advertisements behind
// a single Bloom filter plus a chained integrity hash, per the spec's v2
// BLE layout: [V(3b)|num_slots(5b)] [service_id_bloom_filter(10)]
// [advertisement_hash(4)].
type AdvertisementHeader struct {
	Version  uint8
	NumSlots uint8
	Filter   BloomFilter
	Hash     [4]byte
}

var errBadAdvertisementHeader = errors.New("wire: malformed advertisement header")

// ToBytes encodes h.
func (h AdvertisementHeader) ToBytes() ([]byte, error) {
	if h.NumSlots >= AdvertisementHeaderSlots {
		return nil, errBadAdvertisementHeader
	}
	filterBytes := h.Filter.ToBytes()
	if len(filterBytes) != BloomFilterByteLength {
		return nil, errBadAdvertisementHeader
	}
	out := make([]byte, 0, 1+BloomFilterByteLength+4)
	out = append(out, (h.Version<<5)|(h.NumSlots&0x1f))
	out = append(out, filterBytes...)
	out = append(out, h.Hash[:]...)
	return out, nil
}

// AdvertisementHeaderFromBytes decodes a header. As with BLEAdvertisement,
// structural failures yield the zero value rather than an error.
func AdvertisementHeaderFromBytes(b []byte) AdvertisementHeader {
	if len(b) != 1+BloomFilterByteLength+4 {
		return AdvertisementHeader{}
	}
	version := b[0] >> 5
	if version != bleAdvertisementVersion {
		return AdvertisementHeader{}
	}
	h := AdvertisementHeader{
		Version:  version,
		NumSlots: b[0] & 0x1f,
		Filter:   BloomFilterFromBytes(b[1 : 1+BloomFilterByteLength]),
	}
	copy(h.Hash[:], b[1+BloomFilterByteLength:])
	return h
}

// ChainedAdvertisementHash computes the first 4 bytes of
// SHA256(dummyID || adv1 || hash1 || adv2 || ...), chaining each
// advertisement's bytes with a running hash so any advertisement change
// invalidates the digest. dummyID seeds the chain for the zero-advertisement
// case.
func ChainedAdvertisementHash(dummyID []byte, advertisements [][]byte) [4]byte {
	h := sha256.New()
	h.Write(dummyID)
	running := dummyID
	for _, adv := range advertisements {
		h.Write(adv)
		sum := sha256.Sum256(append(append([]byte{}, running...), adv...))
		h.Write(sum[:])
		running = sum[:]
	}
	var out [4]byte
	full := h.Sum(nil)
	copy(out[:], full[:4])
	return out
}
