package payload

import (
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"

	"nearby/wire"
)

func openFile(path string) (*os.File, error) { return os.Open(path) }

// outgoingState tracks one payload being sent to one or more endpoints.
// Each endpoint gets an independent status so one failing peer does not
// abort delivery to the others (spec §4.5's partial-failure semantics).
type outgoingState struct {
	payload Payload

	mu        sync.Mutex
	endpoints map[string]Status
	cancelled bool
}

// Send fragments payload into MAX_CHUNK_SIZE chunks and writes them to
// every endpoint in endpointIDs via send, emitting a ProgressEvent to the
// listener after each chunk and a final SUCCESS/FAILURE per endpoint.
// send is expected to block (or queue-block) until the underlying writer
// has room, which is this package's flow-control mechanism: the payload
// manager never gets more than one chunk ahead of what the channel's
// writer queue can absorb.
func (m *Manager) Send(p Payload, endpointIDs []string, send SendFunc) error {
	st := &outgoingState{payload: p, endpoints: make(map[string]Status, len(endpointIDs))}
	for _, id := range endpointIDs {
		st.endpoints[id] = StatusInProgress
	}
	m.mu.Lock()
	m.outgoing[p.id] = st
	m.mu.Unlock()

	var reader io.Reader
	switch p.typ {
	case TypeBytes:
		reader = newByteReader(p.bytes)
	case TypeStream:
		reader = p.stream
	case TypeFile:
		f, err := openFile(p.file)
		if err != nil {
			m.failAll(st, endpointIDs)
			return err
		}
		defer f.Close()
		reader = f
	}

	var offset int64
	buf := make([]byte, MaxChunkSize)
	for {
		st.mu.Lock()
		cancelled := st.cancelled
		st.mu.Unlock()
		if cancelled {
			return nil
		}

		n, readErr := io.ReadFull(reader, buf)
		if n > 0 {
			m.broadcastChunk(st, endpointIDs, send, wire.PayloadChunk{
				Offset: offset,
				Body:   append([]byte(nil), buf[:n]...),
			})
			offset += int64(n)
			m.emitProgress(st, endpointIDs, offset, StatusInProgress)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			m.failAll(st, endpointIDs)
			m.emitProgress(st, endpointIDs, offset, StatusFailure)
			m.sendErrorControl(st, endpointIDs, send)
			return readErr
		}
	}

	// Distinguished last-chunk marker: zero-length body at offset == total.
	m.broadcastChunk(st, endpointIDs, send, wire.PayloadChunk{Offset: offset})
	m.emitProgress(st, endpointIDs, offset, StatusSuccess)
	m.log.Debug("payload send complete", "payload_id", st.payload.id, "size", humanize.Bytes(uint64(offset)), "endpoints", len(endpointIDs))

	st.mu.Lock()
	for id := range st.endpoints {
		st.endpoints[id] = StatusSuccess
	}
	st.mu.Unlock()
	return nil
}

func (m *Manager) broadcastChunk(st *outgoingState, endpointIDs []string, send SendFunc, chunk wire.PayloadChunk) {
	frame := wire.Frame{
		Type: wire.FramePayloadTransfer,
		PayloadTransfer: &wire.PayloadTransfer{
			Header:     wire.PayloadHeader{ID: uint64(st.payload.id), Type: wire.PayloadType(st.payload.typ), TotalSize: st.payload.size},
			Chunk:      chunk,
			PacketType: wire.PacketData,
		},
	}
	for _, id := range endpointIDs {
		st.mu.Lock()
		status := st.endpoints[id]
		st.mu.Unlock()
		if status == StatusFailure || status == StatusCancelled {
			continue
		}
		send(id, frame)
	}
}

func (m *Manager) emitProgress(st *outgoingState, endpointIDs []string, transferred int64, status Status) {
	for _, id := range endpointIDs {
		m.listener.OnProgress(ProgressEvent{
			PayloadID:        st.payload.id,
			EndpointID:       id,
			BytesTransferred: transferred,
			TotalSize:        st.payload.size,
			Status:           status,
		})
	}
}

func (m *Manager) failAll(st *outgoingState, endpointIDs []string) {
	st.mu.Lock()
	for _, id := range endpointIDs {
		st.endpoints[id] = StatusFailure
	}
	st.mu.Unlock()
}

func (m *Manager) sendErrorControl(st *outgoingState, endpointIDs []string, send SendFunc) {
	frame := wire.Frame{
		Type: wire.FramePayloadTransfer,
		PayloadTransfer: &wire.PayloadTransfer{
			Header:     wire.PayloadHeader{ID: uint64(st.payload.id), Type: wire.PayloadType(st.payload.typ), TotalSize: st.payload.size},
			PacketType: wire.PacketControl,
			Control:    wire.ControlPayloadError,
		},
	}
	for _, id := range endpointIDs {
		send(id, frame)
	}
}

// CancelPayload marks id cancelled for every endpoint currently receiving
// it, flushes no further chunks, and sends a CONTROL cancel marker.
// Idempotent and acknowledgement-free, per spec §4.5.
func (m *Manager) CancelPayload(id ID, endpointIDs []string, send SendFunc) {
	m.mu.Lock()
	st, ok := m.outgoing[id]
	m.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	if st.cancelled {
		st.mu.Unlock()
		return
	}
	st.cancelled = true
	for _, eid := range endpointIDs {
		st.endpoints[eid] = StatusCancelled
	}
	st.mu.Unlock()

	frame := wire.Frame{
		Type: wire.FramePayloadTransfer,
		PayloadTransfer: &wire.PayloadTransfer{
			Header:     wire.PayloadHeader{ID: uint64(id), Type: wire.PayloadType(st.payload.typ), TotalSize: st.payload.size},
			PacketType: wire.PacketControl,
			Control:    wire.ControlCancel,
		},
	}
	for _, eid := range endpointIDs {
		send(eid, frame)
	}
	m.emitProgress(st, endpointIDs, 0, StatusCancelled)
}

// byteReader adapts an in-memory slice to io.Reader without a copy.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
