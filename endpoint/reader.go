package endpoint

import (
	"context"
	"log/slog"
	"time"

	"nearby/channel"
	"nearby/wire"
)

// FrameSink receives classified frames from the reader task. Each method is
// called on the reader goroutine, so implementations must not block;
// anything client-visible must go through a CallbackExecutor.
type FrameSink interface {
	OnKeepAlive(endpointID string)
	OnDisconnection(endpointID string)
	OnPayloadTransfer(endpointID string, f wire.PayloadTransfer)
	OnBandwidthUpgradeNegotiation(endpointID string, f wire.BandwidthUpgradeNegotiation)
	OnConnectionRequest(endpointID string, f wire.ConnectionRequest)
	OnConnectionResponse(endpointID string, f wire.ConnectionResponse)
}

// readerTask drains one endpoint channel, classifying every frame per spec
// §4.4's dispatch table, until the channel fails or ctx is cancelled.
type readerTask struct {
	endpointID string
	ch         *channel.Channel
	sink       FrameSink
	onTimeout  func() // not called by run; keep-alive timeouts are detected by keepAliveWatchdog
	onIOError  func()
	log        *slog.Logger
}

func (r *readerTask) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := r.ch.Read()
		if err != nil {
			r.log.Debug("reader task exiting on channel error", "endpoint_id", r.endpointID, "err", err)
			// A cancelled context means this task was superseded by a
			// newer Register call (e.g. a bandwidth-upgrade channel
			// swap) before the old channel's blocked Read unblocked;
			// the supersession already settled this endpoint's state,
			// so this stale error must not fire a second disconnection.
			if ctx.Err() == nil && r.onIOError != nil {
				r.onIOError()
			}
			return
		}

		switch f.Type {
		case wire.FrameKeepAlive:
			r.sink.OnKeepAlive(r.endpointID)
		case wire.FrameDisconnection:
			r.sink.OnDisconnection(r.endpointID)
			return
		case wire.FramePayloadTransfer:
			if f.PayloadTransfer != nil {
				r.sink.OnPayloadTransfer(r.endpointID, *f.PayloadTransfer)
			}
		case wire.FrameBandwidthUpgradeNegotiation:
			if f.BandwidthUpgradeNegotiation != nil {
				r.sink.OnBandwidthUpgradeNegotiation(r.endpointID, *f.BandwidthUpgradeNegotiation)
			}
		case wire.FrameConnectionRequest:
			if f.ConnectionRequest != nil {
				r.sink.OnConnectionRequest(r.endpointID, *f.ConnectionRequest)
			}
		case wire.FrameConnectionResponse:
			if f.ConnectionResponse != nil {
				r.sink.OnConnectionResponse(r.endpointID, *f.ConnectionResponse)
			}
		}
	}
}

// keepAliveWatchdog fires onTimeout if no frame (of any kind) has been read
// for longer than timeout, checked every interval/2 to bound the detection
// lag without busy-polling.
func keepAliveWatchdog(ctx context.Context, ch *channel.Channel, opts KeepAliveOptions, onTimeout func()) {
	opts = opts.WithDefaults()
	tick := opts.Interval / 2
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ch.IsClosed() {
				return
			}
			if time.Since(ch.LastReadAt()) > opts.Timeout {
				onTimeout()
				return
			}
		}
	}
}
