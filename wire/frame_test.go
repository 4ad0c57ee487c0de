package wire

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		frame Frame
	}{
		{
			name: "connection request",
			frame: Frame{
				Type: FrameConnectionRequest,
				ConnectionRequest: &ConnectionRequest{
					EndpointID:   "ABCD",
					EndpointName: []byte("pixel"),
					Nonce:        123456789,
					Mediums:      []uint8{2, 1, 0},
				},
			},
		},
		{
			name: "connection response accept",
			frame: Frame{
				Type:               FrameConnectionResponse,
				ConnectionResponse: &ConnectionResponse{Status: ResponseAccept},
			},
		},
		{
			name:  "keep alive",
			frame: Frame{Type: FrameKeepAlive},
		},
		{
			name:  "disconnection",
			frame: Frame{Type: FrameDisconnection},
		},
		{
			name: "payload transfer data chunk",
			frame: Frame{
				Type: FramePayloadTransfer,
				PayloadTransfer: &PayloadTransfer{
					Header:     PayloadHeader{ID: 42, Type: PayloadBytes, TotalSize: 5},
					Chunk:      PayloadChunk{Offset: 0, Body: []byte("hello")},
					PacketType: PacketData,
				},
			},
		},
		{
			name: "payload transfer cancel control chunk",
			frame: Frame{
				Type: FramePayloadTransfer,
				PayloadTransfer: &PayloadTransfer{
					Header:     PayloadHeader{ID: 7, Type: PayloadStream, TotalSize: -1},
					Chunk:      PayloadChunk{Offset: 10},
					PacketType: PacketControl,
					Control:    ControlCancel,
				},
			},
		},
		{
			name: "bandwidth upgrade negotiation",
			frame: Frame{
				Type: FrameBandwidthUpgradeNegotiation,
				BandwidthUpgradeNegotiation: &BandwidthUpgradeNegotiation{
					Event:      BwuUpgradePathAvailable,
					EndpointID: "WXYZ",
					Path: UpgradePathInfo{
						Medium:    1,
						IPAddress: "192.168.1.5",
						Port:      4242,
					},
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := Encode(tc.frame)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := ReadFrame(bytes.NewReader(buf))
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			assertFrameEqual(t, tc.frame, got)
		})
	}
}

func assertFrameEqual(t *testing.T, want, got Frame) {
	t.Helper()
	if want.Type != got.Type {
		t.Fatalf("type mismatch: want %v got %v", want.Type, got.Type)
	}
	switch want.Type {
	case FrameConnectionRequest:
		w, g := want.ConnectionRequest, got.ConnectionRequest
		if w.EndpointID != g.EndpointID || !bytes.Equal(w.EndpointName, g.EndpointName) ||
			w.Nonce != g.Nonce || !bytes.Equal(w.Mediums, g.Mediums) {
			t.Fatalf("connection request mismatch: want %+v got %+v", w, g)
		}
	case FrameConnectionResponse:
		if want.ConnectionResponse.Status != got.ConnectionResponse.Status {
			t.Fatalf("status mismatch: want %v got %v", want.ConnectionResponse.Status, got.ConnectionResponse.Status)
		}
	case FramePayloadTransfer:
		w, g := want.PayloadTransfer, got.PayloadTransfer
		if w.Header != g.Header || w.PacketType != g.PacketType || w.Control != g.Control ||
			w.Chunk.Offset != g.Chunk.Offset || !bytes.Equal(w.Chunk.Body, g.Chunk.Body) {
			t.Fatalf("payload transfer mismatch: want %+v got %+v", w, g)
		}
	case FrameBandwidthUpgradeNegotiation:
		w, g := want.BandwidthUpgradeNegotiation, got.BandwidthUpgradeNegotiation
		if w.Event != g.Event || w.EndpointID != g.EndpointID || w.Path != g.Path {
			t.Fatalf("bwu mismatch: want %+v got %+v", w, g)
		}
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var lenBuf [4]byte
	lenBuf[0] = 0xff // absurdly large length prefix
	lenBuf[1] = 0xff
	lenBuf[2] = 0xff
	lenBuf[3] = 0xff
	_, err := ReadFrame(bytes.NewReader(lenBuf[:]))
	if err != ErrFrameTooLarge {
		t.Fatalf("want ErrFrameTooLarge, got %v", err)
	}
}

func TestPayloadChunkIsLastChunk(t *testing.T) {
	c := PayloadChunk{Offset: 100}
	if !c.IsLastChunk(100) {
		t.Fatalf("expected last chunk at offset == total size with empty body")
	}
	if c.IsLastChunk(200) {
		t.Fatalf("offset mismatch should not be last chunk")
	}
	c2 := PayloadChunk{Offset: 100, Body: []byte{1}}
	if c2.IsLastChunk(100) {
		t.Fatalf("non-empty body should not be last chunk")
	}
}
