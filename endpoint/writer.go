package endpoint

import (
	"context"
	"log/slog"
	"time"

	"nearby/channel"
	"nearby/wire"
)

// writerTask serializes outbound frames onto one endpoint channel plus
// periodic KEEP_ALIVE probes. Control frames (anything not a payload
// chunk) always preempt a pending payload chunk queued on the same
// writer, per spec §4.4's "two priorities, two queues merged FIFO".
type writerTask struct {
	endpointID string
	ch         *channel.Channel
	control    chan wire.Frame
	payload    chan wire.Frame
	log        *slog.Logger
}

func newWriterTask(endpointID string, ch *channel.Channel, log *slog.Logger) *writerTask {
	return &writerTask{
		endpointID: endpointID,
		ch:         ch,
		control:    make(chan wire.Frame, 64),
		payload:    make(chan wire.Frame, 256),
		log:        log,
	}
}

// Enqueue submits a frame for serialized writing. Payload-transfer chunks
// go on the low-priority queue; everything else is control traffic.
func (w *writerTask) Enqueue(f wire.Frame) {
	if f.Type == wire.FramePayloadTransfer {
		w.payload <- f
		return
	}
	w.control <- f
}

func (w *writerTask) run(ctx context.Context, opts KeepAliveOptions) {
	opts = opts.WithDefaults()
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-w.control:
			w.write(f)
		case <-ticker.C:
			w.write(wire.Frame{Type: wire.FrameKeepAlive})
		default:
			select {
			case <-ctx.Done():
				return
			case f := <-w.control:
				w.write(f)
			case <-ticker.C:
				w.write(wire.Frame{Type: wire.FrameKeepAlive})
			case f := <-w.payload:
				w.write(f)
			}
		}
	}
}

func (w *writerTask) write(f wire.Frame) {
	if err := w.ch.Write(f); err != nil {
		w.log.Debug("writer task failed", "endpoint_id", w.endpointID, "err", err)
	}
}
