package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestBLEAdvertisementRoundTrip(t *testing.T) {
	cases := []BLEAdvertisement{
		{
			Version:      bleAdvertisementVersion,
			PCP:          1,
			ServiceIDHash: [3]byte{0xaa, 0xbb, 0xcc},
			EndpointID:   [4]byte{'A', 'B', 'C', 'D'},
			EndpointName: []byte("pixel 7"),
		},
		{
			Version:         bleAdvertisementVersion,
			PCP:             2,
			ServiceIDHash:   [3]byte{1, 2, 3},
			EndpointID:      [4]byte{'W', 'X', 'Y', 'Z'},
			EndpointName:    []byte("laptop"),
			BluetoothMAC:    [6]byte{1, 2, 3, 4, 5, 6},
			HasBluetoothMAC: true,
		},
		{
			Version:       bleAdvertisementVersion,
			EndpointID:    [4]byte{'0', '0', '0', '0'},
			ServiceIDHash: [3]byte{},
			EndpointName:  bytes.Repeat([]byte("x"), MaxEndpointNameLen),
		},
	}

	for _, a := range cases {
		encoded := a.ToBytes()
		got := BLEAdvertisementFromBytes(encoded)
		if !got.IsValid() {
			t.Fatalf("round-tripped advertisement invalid: %+v", got)
		}
		if got.PCP != a.PCP || got.ServiceIDHash != a.ServiceIDHash || got.EndpointID != a.EndpointID ||
			!bytes.Equal(got.EndpointName, a.EndpointName) || got.HasBluetoothMAC != a.HasBluetoothMAC ||
			(a.HasBluetoothMAC && got.BluetoothMAC != a.BluetoothMAC) {
			t.Fatalf("round trip mismatch: want %+v got %+v", a, got)
		}
	}
}

func TestBLEAdvertisementInvalidInputsCanonicalize(t *testing.T) {
	invalids := [][]byte{
		nil,
		{0x01},
		bytes.Repeat([]byte{0}, 3), // too short
		{(2 << 5), 0, 0, 0, 0, 0, 0, 0, 0}, // wrong version
	}
	for _, raw := range invalids {
		got := BLEAdvertisementFromBytes(raw)
		if got.IsValid() {
			t.Fatalf("expected invalid advertisement for input %v, got %+v", raw, got)
		}
		if !reflect.DeepEqual(got, BLEAdvertisement{}) {
			t.Fatalf("expected canonical zero value for invalid input %v, got %+v", raw, got)
		}
	}
}

func TestDeviceNameRoundTrip(t *testing.T) {
	a := BLEAdvertisement{
		Version:       bleAdvertisementVersion,
		PCP:            3,
		ServiceIDHash:  [3]byte{9, 8, 7},
		EndpointID:     [4]byte{'N', 'A', 'M', 'E'},
		EndpointName:   []byte("device"),
	}
	name := a.ToDeviceName()
	got := DeviceNameToBLEAdvertisement(name)
	if got.HasBluetoothMAC {
		t.Fatalf("device name encoding must not carry a MAC")
	}
	if got.PCP != a.PCP || got.EndpointID != a.EndpointID || !bytes.Equal(got.EndpointName, a.EndpointName) {
		t.Fatalf("device name round trip mismatch: want %+v got %+v", a, got)
	}
}

func TestAdvertisementHeaderRoundTrip(t *testing.T) {
	filter := NewBloomFilter(BloomFilterByteLength)
	filter.Add([]byte("svc-a"))
	filter.Add([]byte("svc-b"))

	h := AdvertisementHeader{
		Version:  bleAdvertisementVersion,
		NumSlots: 2,
		Filter:   *filter,
		Hash:     ChainedAdvertisementHash([]byte("dummy"), [][]byte{[]byte("adv1"), []byte("adv2")}),
	}
	encoded, err := h.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	got := AdvertisementHeaderFromBytes(encoded)
	if got.NumSlots != h.NumSlots || got.Hash != h.Hash {
		t.Fatalf("header round trip mismatch: want %+v got %+v", h, got)
	}
	if !got.Filter.PossiblyContains([]byte("svc-a")) || !got.Filter.PossiblyContains([]byte("svc-b")) {
		t.Fatalf("bloom filter membership lost across header round trip")
	}
}

func TestChainedHashChangesWithAdvertisements(t *testing.T) {
	dummy := []byte("dummy-id")
	h1 := ChainedAdvertisementHash(dummy, [][]byte{[]byte("adv1")})
	h2 := ChainedAdvertisementHash(dummy, [][]byte{[]byte("adv1-changed")})
	if h1 == h2 {
		t.Fatalf("expected chained hash to change when an advertisement changes")
	}
}
