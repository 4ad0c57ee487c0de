// Package wire implements the offline wire protocol: the length-prefixed
// frame envelope exchanged between two connected endpoints, and the
// compact medium-specific advertisement encodings used during discovery.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds any single decoded frame body. A length prefix above
// this causes the channel to fail with ErrFrameTooLarge rather than
// allocate an attacker-controlled amount of memory.
const MaxFrameSize = 1 << 20 // 1 MiB

// lengthPrefixSize is the size of the big-endian length prefix that
// precedes every frame on a stream-oriented medium.
const lengthPrefixSize = 4

// ErrFrameTooLarge is returned when a decoded length prefix exceeds
// MaxFrameSize.
var ErrFrameTooLarge = errors.New("wire: frame exceeds max frame size")

// FrameType discriminates the body carried by a V1Frame.
type FrameType uint8

const (
	FrameUnknown FrameType = iota
	FrameConnectionRequest
	FrameConnectionResponse
	FrameKeepAlive
	FrameDisconnection
	FramePayloadTransfer
	FrameBandwidthUpgradeNegotiation
)

func (t FrameType) String() string {
	switch t {
	case FrameConnectionRequest:
		return "CONNECTION_REQUEST"
	case FrameConnectionResponse:
		return "CONNECTION_RESPONSE"
	case FrameKeepAlive:
		return "KEEP_ALIVE"
	case FrameDisconnection:
		return "DISCONNECTION"
	case FramePayloadTransfer:
		return "PAYLOAD_TRANSFER"
	case FrameBandwidthUpgradeNegotiation:
		return "BANDWIDTH_UPGRADE_NEGOTIATION"
	default:
		return "UNKNOWN"
	}
}

// FrameVersion is the only envelope version this module speaks.
const FrameVersion uint8 = 1

// Frame is the versioned envelope every message on a channel is wrapped
// in. Exactly one of the typed payload fields is populated, matching
// Type.
type Frame struct {
	Version                    uint8
	Type                       FrameType
	ConnectionRequest          *ConnectionRequest
	ConnectionResponse         *ConnectionResponse
	PayloadTransfer            *PayloadTransfer
	BandwidthUpgradeNegotiation *BandwidthUpgradeNegotiation
}

// ConnectionRequest is sent first by the requester immediately after a raw
// socket opens.
type ConnectionRequest struct {
	EndpointID   string
	EndpointName []byte
	Nonce        uint64
	Mediums      []uint8
}

// ConnectionResponse carries the accept/reject decision after the UKEY2
// handshake.
type ConnectionResponse struct {
	Status uint8
}

const (
	ResponseAccept uint8 = 0
	ResponseReject uint8 = 1
)

// PacketType discriminates a payload-transfer's chunk kind.
type PacketType uint8

const (
	PacketData PacketType = iota
	PacketControl
)

// ControlMarker tags the meaning of a PacketControl chunk.
type ControlMarker uint8

const (
	ControlNone ControlMarker = iota
	ControlCancel
	ControlPayloadError
)

// PayloadType tags the three payload kinds. The values match payload.Type,
// which reserves 0 for an unknown payload.
type PayloadType uint8

const (
	PayloadBytes PayloadType = iota + 1
	PayloadStream
	PayloadFile
)

// PayloadHeader precedes every chunk of a given payload id.
type PayloadHeader struct {
	ID        uint64
	Type      PayloadType
	TotalSize int64
}

// PayloadChunk is one fragment of a payload transfer.
type PayloadChunk struct {
	Offset int64
	Body   []byte
	Flags  uint8
}

// IsLastChunk reports the spec's distinguished last-chunk encoding: an
// empty body whose offset equals the total size.
func (c PayloadChunk) IsLastChunk(totalSize int64) bool {
	return len(c.Body) == 0 && c.Offset == totalSize
}

// PayloadTransfer carries one header+chunk pair, tagged as data or
// control.
type PayloadTransfer struct {
	Header     PayloadHeader
	Chunk      PayloadChunk
	PacketType PacketType
	Control    ControlMarker
}

// BwuEventType enumerates the bandwidth-upgrade negotiation events carried
// on an established channel. Named and ordered per the negotiation
// sequence in pcp/bwu_events.go.
type BwuEventType uint8

const (
	BwuUnknown BwuEventType = iota
	BwuUpgradePathAvailable
	BwuClientIntroduction
	BwuLastWriteToPriorChannel
	BwuSafeToClosePriorChannel
	BwuUpgradeFailure
)

// UpgradePathInfo addresses the target medium's upgraded endpoint.
type UpgradePathInfo struct {
	Medium      uint8
	IPAddress   string
	Port        int
	Credentials string
	SSID        string
}

// BandwidthUpgradeNegotiation is the frame body exchanged during a BWU.
type BandwidthUpgradeNegotiation struct {
	Event      BwuEventType
	Path       UpgradePathInfo
	EndpointID string
}

// Encode serializes f into a length-prefixed wire buffer ready to write to
// a stream-oriented channel.
func Encode(f Frame) ([]byte, error) {
	body, err := encodeBody(f)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[lengthPrefixSize:], body)
	return buf, nil
}

// EncodeFrameBytes serializes f without a length prefix, for mediums
// that are already message-oriented (BLE, WebRTC data channels) and so
// need no framing on top of the transport's own message boundaries.
func EncodeFrameBytes(f Frame) ([]byte, error) {
	return encodeBody(f)
}

// DecodeFrameBytes is the inverse of EncodeFrameBytes.
func DecodeFrameBytes(body []byte) (Frame, error) {
	return decodeBody(body)
}

// ReadFrame reads one length-prefixed frame from r. It returns
// ErrFrameTooLarge without consuming the frame body if the advertised
// length exceeds MaxFrameSize, matching the spec's requirement that an
// oversized frame fails the channel with kIo.
func ReadFrame(r io.Reader) (Frame, error) {
	body, err := ReadLengthPrefixedBody(r)
	if err != nil {
		return Frame{}, err
	}
	return decodeBody(body)
}

// ReadLengthPrefixedBody reads the 4-byte big-endian length prefix plus
// the raw body bytes that follow, without decoding them. Channels that
// install encryption decrypt this raw body (the length prefix itself is
// never encrypted, per spec §4.2) before calling DecodeFrameBytes.
func ReadLengthPrefixedBody(r io.Reader) ([]byte, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteLengthPrefixedBody prepends body with its 4-byte big-endian length
// prefix. body may already be encrypted; the prefix always describes the
// length of whatever bytes follow it on the wire.
func WriteLengthPrefixedBody(body []byte) ([]byte, error) {
	if len(body) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[lengthPrefixSize:], body)
	return buf, nil
}

// tag-length-value field numbers, kept stable so the encoding is bit
// reproducible across versions even though this is a hand-written codec
// rather than a generated protocol-buffer one.
const (
	fieldVersion = 1
	fieldType    = 2

	fieldCRNonce       = 10
	fieldCREndpointID  = 11
	fieldCREndpointNm  = 12
	fieldCRMediums     = 13

	fieldCRespStatus = 20

	fieldPTHeaderID    = 30
	fieldPTHeaderType  = 31
	fieldPTHeaderTotal = 32
	fieldPTChunkOffset = 33
	fieldPTChunkBody   = 34
	fieldPTChunkFlags  = 35
	fieldPTPacketType  = 36
	fieldPTControl     = 37

	fieldBwuEvent      = 40
	fieldBwuEndpointID = 41
	fieldBwuPathMedium = 42
	fieldBwuPathIP     = 43
	fieldBwuPathPort   = 44
	fieldBwuPathCreds  = 45
	fieldBwuPathSSID   = 46
)

func encodeBody(f Frame) ([]byte, error) {
	w := newTLVWriter()
	w.putByte(fieldVersion, FrameVersion)
	w.putByte(fieldType, byte(f.Type))

	switch f.Type {
	case FrameConnectionRequest:
		cr := f.ConnectionRequest
		if cr == nil {
			return nil, errors.New("wire: CONNECTION_REQUEST frame missing body")
		}
		w.putUint64(fieldCRNonce, cr.Nonce)
		w.putString(fieldCREndpointID, cr.EndpointID)
		w.putBytes(fieldCREndpointNm, cr.EndpointName)
		w.putBytes(fieldCRMediums, cr.Mediums)
	case FrameConnectionResponse:
		cresp := f.ConnectionResponse
		if cresp == nil {
			return nil, errors.New("wire: CONNECTION_RESPONSE frame missing body")
		}
		w.putByte(fieldCRespStatus, cresp.Status)
	case FrameKeepAlive, FrameDisconnection:
		// no body fields
	case FramePayloadTransfer:
		pt := f.PayloadTransfer
		if pt == nil {
			return nil, errors.New("wire: PAYLOAD_TRANSFER frame missing body")
		}
		w.putUint64(fieldPTHeaderID, pt.Header.ID)
		w.putByte(fieldPTHeaderType, byte(pt.Header.Type))
		w.putInt64(fieldPTHeaderTotal, pt.Header.TotalSize)
		w.putInt64(fieldPTChunkOffset, pt.Chunk.Offset)
		w.putBytes(fieldPTChunkBody, pt.Chunk.Body)
		w.putByte(fieldPTChunkFlags, pt.Chunk.Flags)
		w.putByte(fieldPTPacketType, byte(pt.PacketType))
		w.putByte(fieldPTControl, byte(pt.Control))
	case FrameBandwidthUpgradeNegotiation:
		bwu := f.BandwidthUpgradeNegotiation
		if bwu == nil {
			return nil, errors.New("wire: BANDWIDTH_UPGRADE_NEGOTIATION frame missing body")
		}
		w.putByte(fieldBwuEvent, byte(bwu.Event))
		w.putString(fieldBwuEndpointID, bwu.EndpointID)
		w.putByte(fieldBwuPathMedium, bwu.Path.Medium)
		w.putString(fieldBwuPathIP, bwu.Path.IPAddress)
		w.putInt64(fieldBwuPathPort, int64(bwu.Path.Port))
		w.putString(fieldBwuPathCreds, bwu.Path.Credentials)
		w.putString(fieldBwuPathSSID, bwu.Path.SSID)
	default:
		return nil, fmt.Errorf("wire: unknown frame type %d", f.Type)
	}
	return w.bytes(), nil
}

func decodeBody(body []byte) (Frame, error) {
	fields, err := parseTLV(body)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Version: fields.byteOr(fieldVersion, 0)}
	f.Type = FrameType(fields.byteOr(fieldType, 0))

	switch f.Type {
	case FrameConnectionRequest:
		f.ConnectionRequest = &ConnectionRequest{
			EndpointID:   fields.stringOr(fieldCREndpointID, ""),
			EndpointName: fields.bytesOr(fieldCREndpointNm, nil),
			Nonce:        fields.uint64Or(fieldCRNonce, 0),
			Mediums:      fields.bytesOr(fieldCRMediums, nil),
		}
	case FrameConnectionResponse:
		f.ConnectionResponse = &ConnectionResponse{
			Status: fields.byteOr(fieldCRespStatus, 0),
		}
	case FrameKeepAlive, FrameDisconnection:
		// no body fields
	case FramePayloadTransfer:
		f.PayloadTransfer = &PayloadTransfer{
			Header: PayloadHeader{
				ID:        fields.uint64Or(fieldPTHeaderID, 0),
				Type:      PayloadType(fields.byteOr(fieldPTHeaderType, 0)),
				TotalSize: fields.int64Or(fieldPTHeaderTotal, 0),
			},
			Chunk: PayloadChunk{
				Offset: fields.int64Or(fieldPTChunkOffset, 0),
				Body:   fields.bytesOr(fieldPTChunkBody, nil),
				Flags:  fields.byteOr(fieldPTChunkFlags, 0),
			},
			PacketType: PacketType(fields.byteOr(fieldPTPacketType, 0)),
			Control:    ControlMarker(fields.byteOr(fieldPTControl, 0)),
		}
	case FrameBandwidthUpgradeNegotiation:
		f.BandwidthUpgradeNegotiation = &BandwidthUpgradeNegotiation{
			Event:      BwuEventType(fields.byteOr(fieldBwuEvent, 0)),
			EndpointID: fields.stringOr(fieldBwuEndpointID, ""),
			Path: UpgradePathInfo{
				Medium:      fields.byteOr(fieldBwuPathMedium, 0),
				IPAddress:   fields.stringOr(fieldBwuPathIP, ""),
				Port:        int(fields.int64Or(fieldBwuPathPort, 0)),
				Credentials: fields.stringOr(fieldBwuPathCreds, ""),
				SSID:        fields.stringOr(fieldBwuPathSSID, ""),
			},
		}
	default:
		return Frame{}, fmt.Errorf("wire: unknown frame type %d", f.Type)
	}
	return f, nil
}
