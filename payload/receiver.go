package payload

import (
	"io"
	"os"
	"sync"

	"nearby/wire"
)

// incomingState reassembles one payload arriving from one endpoint.
type incomingState struct {
	id         ID
	typ        Type
	totalSize  int64
	endpointID string

	mu        sync.Mutex
	received  int64
	cancelled bool

	bytesBuf []byte         // TypeBytes
	pipeW    *io.PipeWriter // TypeStream
	pipeR    *io.PipeReader
	file     *os.File // TypeFile
	filePath string
}

// HandleIncoming processes one PAYLOAD_TRANSFER frame received from
// endpointID, reassembling the payload it belongs to and emitting progress
// to the listener. Called from the endpoint reader's dispatch path; the
// only blocking it does is a bounded stream-pipe write, matching spec
// §4.5's "never buffers more than one outstanding chunk ahead" rule.
func (m *Manager) HandleIncoming(endpointID string, f wire.PayloadTransfer) {
	key := incomingKey{endpointID: endpointID, id: ID(f.Header.ID)}

	if f.PacketType == wire.PacketControl {
		m.handleControl(key, f)
		return
	}

	m.mu.Lock()
	st, ok := m.incoming[key]
	var notifyStream *incomingState
	if !ok {
		st = &incomingState{
			id:         ID(f.Header.ID),
			typ:        Type(f.Header.Type),
			totalSize:  f.Header.TotalSize,
			endpointID: endpointID,
		}
		switch st.typ {
		case TypeBytes:
			if st.totalSize > 0 {
				st.bytesBuf = make([]byte, 0, st.totalSize)
			}
		case TypeStream:
			st.pipeR, st.pipeW = io.Pipe()
			notifyStream = st
		case TypeFile:
			file, path, err := createTempFile()
			if err == nil {
				st.file, st.filePath = file, path
			}
		}
		m.incoming[key] = st
	}
	m.mu.Unlock()
	if notifyStream != nil {
		m.listener.OnStreamReceived(endpointID, notifyStream.id, notifyStream.totalSize, notifyStream.pipeR)
	}

	st.mu.Lock()
	if st.cancelled {
		st.mu.Unlock()
		return
	}
	st.mu.Unlock()

	last := f.Chunk.IsLastChunk(st.totalSize)
	if len(f.Chunk.Body) > 0 {
		m.writeChunk(st, f.Chunk)
	}

	st.mu.Lock()
	st.received += int64(len(f.Chunk.Body))
	received := st.received
	st.mu.Unlock()

	if !last {
		m.listener.OnProgress(ProgressEvent{
			PayloadID: st.id, EndpointID: endpointID,
			BytesTransferred: received, TotalSize: st.totalSize, Status: StatusInProgress,
		})
		return
	}

	m.finish(key, st)
}

func (m *Manager) writeChunk(st *incomingState, chunk wire.PayloadChunk) {
	switch st.typ {
	case TypeBytes:
		st.mu.Lock()
		if int64(len(st.bytesBuf)) < chunk.Offset+int64(len(chunk.Body)) {
			grown := make([]byte, chunk.Offset+int64(len(chunk.Body)))
			copy(grown, st.bytesBuf)
			st.bytesBuf = grown
		}
		copy(st.bytesBuf[chunk.Offset:], chunk.Body)
		st.mu.Unlock()
	case TypeStream:
		if st.pipeW != nil {
			_, _ = st.pipeW.Write(chunk.Body)
		}
	case TypeFile:
		if st.file != nil {
			_, _ = st.file.WriteAt(chunk.Body, chunk.Offset)
		}
	}
}

func (m *Manager) finish(key incomingKey, st *incomingState) {
	m.mu.Lock()
	delete(m.incoming, key)
	m.mu.Unlock()

	switch st.typ {
	case TypeBytes:
		m.listener.OnBytesReceived(st.endpointID, st.id, st.bytesBuf)
	case TypeStream:
		if st.pipeW != nil {
			_ = st.pipeW.Close()
		}
	case TypeFile:
		if st.file != nil {
			_ = st.file.Close()
			m.listener.OnFileReceived(st.endpointID, st.id, st.received, st.filePath)
		}
	}
	m.listener.OnProgress(ProgressEvent{
		PayloadID: st.id, EndpointID: st.endpointID,
		BytesTransferred: st.received, TotalSize: st.totalSize, Status: StatusSuccess,
	})
}

func (m *Manager) handleControl(key incomingKey, f wire.PayloadTransfer) {
	m.mu.Lock()
	st, ok := m.incoming[key]
	if ok {
		delete(m.incoming, key)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	st.cancelled = true
	st.mu.Unlock()

	status := StatusCancelled
	if f.Control == wire.ControlPayloadError {
		status = StatusFailure
	}

	switch st.typ {
	case TypeStream:
		if st.pipeW != nil {
			_ = st.pipeW.CloseWithError(io.ErrClosedPipe)
		}
	case TypeFile:
		if st.file != nil {
			_ = st.file.Close()
			_ = os.Remove(st.filePath)
		}
	}

	m.listener.OnProgress(ProgressEvent{
		PayloadID: st.id, EndpointID: key.endpointID,
		BytesTransferred: st.received, TotalSize: st.totalSize, Status: status,
	})
}

func createTempFile() (*os.File, string, error) {
	f, err := os.CreateTemp("", "nearby-payload-*")
	if err != nil {
		return nil, "", err
	}
	return f, f.Name(), nil
}
