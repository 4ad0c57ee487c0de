// Package payload implements payload fragmentation, reassembly, flow
// control, progress reporting, and cancellation described in spec §4.5.
package payload

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

// Type discriminates what a Payload actually carries, mirroring the order
// original_source's core_v2/payload.h assigns to its variant so the two
// stay in lockstep with the wire codec's PayloadType.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeBytes
	TypeStream
	TypeFile
)

// MaxChunkSize bounds a single PAYLOAD_TRANSFER chunk body for stream and
// file payloads (spec §4.5: "MAX_CHUNK_SIZE ≈ 64 KiB"). Bytes payloads are
// sent as a single chunk unless they exceed this size, in which case the
// same chunking rule applies.
const MaxChunkSize = 64 * 1024

// ID uniquely identifies a payload for the lifetime of a (client, endpoint)
// session. Assigned by the sender; the receiver adopts the id carried in
// the first chunk's header.
type ID uint64

// NewID returns a random nonzero payload id, per spec §4.5.
func NewID() ID {
	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			panic(err) // crypto/rand failing is unrecoverable
		}
		id := ID(binary.BigEndian.Uint64(buf[:]))
		if id != 0 {
			return id
		}
	}
}

// Payload is an immutable, move-only container for exactly one of bytes,
// an io.Reader stream, or a file path, matching the original's
// ByteArray/InputStream/InputFile variant.
type Payload struct {
	id     ID
	typ    Type
	bytes  []byte
	stream io.Reader
	file   string
	size   int64 // total size; -1 if unknown ahead of time (open stream)
}

// NewBytes wraps an in-memory payload.
func NewBytes(data []byte) Payload {
	return Payload{id: NewID(), typ: TypeBytes, bytes: data, size: int64(len(data))}
}

// NewStream wraps a streaming payload whose total size may be unknown.
func NewStream(r io.Reader, size int64) Payload {
	if size <= 0 {
		size = -1
	}
	return Payload{id: NewID(), typ: TypeStream, stream: r, size: size}
}

// NewFile wraps a payload backed by a file at path, already known to be
// size bytes long.
func NewFile(path string, size int64) Payload {
	return Payload{id: NewID(), typ: TypeFile, file: path, size: size}
}

func (p Payload) ID() ID      { return p.id }
func (p Payload) Type() Type  { return p.typ }
func (p Payload) Size() int64 { return p.size }

// AsBytes returns the payload's bytes, or nil if it is not a bytes payload.
func (p Payload) AsBytes() []byte { return p.bytes }

// AsStream returns the payload's reader, or nil if it is not a stream.
func (p Payload) AsStream() io.Reader { return p.stream }

// AsFile returns the payload's file path, or "" if it is not a file.
func (p Payload) AsFile() string { return p.file }

// Status classifies the lifecycle of a payload transfer, surfaced in every
// PAYLOAD_PROGRESS event per spec §4.5.
type Status uint8

const (
	StatusInProgress Status = iota
	StatusSuccess
	StatusFailure
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// ProgressEvent is emitted to the client callback executor after every
// chunk sent or received.
type ProgressEvent struct {
	PayloadID         ID
	EndpointID        string
	BytesTransferred  int64
	TotalSize         int64
	Status            Status
}
