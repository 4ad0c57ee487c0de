// Package channel implements the endpoint channel (a full-duplex framed,
// optionally encrypted, pausable byte pipe to one remote endpoint) and
// the channel manager (the registry of those channels keyed by endpoint
// id), per spec §4.2/§4.3.
package channel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"nearby/medium"
	"nearby/wire"
)

// CloseReason tags why a channel was torn down.
type CloseReason uint8

const (
	ReasonUnknown CloseReason = iota
	ReasonLocalDisconnect
	ReasonRemoteDisconnection
	ReasonIOError
	ReasonUpgraded
	ReasonRemoteUnreachable
)

// ErrChannelClosed is returned by Read/Write once a channel has failed or
// been closed; per spec §4.2, a kIo failure is permanent.
var ErrChannelClosed = errors.New("channel: closed")

// Channel is a framed byte pipe to one remote endpoint. Exactly one
// reader task and one writer task access it at a time (see package
// endpoint), but Channel itself stays safe to call Pause/Resume/Close
// from any goroutine.
type Channel struct {
	EndpointID string

	mu          sync.Mutex
	raw         medium.Channel
	medium      medium.Kind
	reader      *bufio.Reader
	enc         *EncryptionContext
	paused      bool
	resumeCond  *sync.Cond
	closed      bool
	closeReason CloseReason
	lastReadAt  time.Time

	log *slog.Logger
}

// New wraps raw as an endpoint channel. kind records which medium raw
// rides on, surfaced via GetMedium for bandwidth-change notifications.
func New(endpointID string, raw medium.Channel, kind medium.Kind, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	c := &Channel{
		EndpointID: endpointID,
		raw:        raw,
		medium:     kind,
		reader:     bufio.NewReader(raw),
		lastReadAt: time.Now(),
		log:        log.With("endpoint_id", endpointID, "medium", kind.String()),
	}
	c.resumeCond = sync.NewCond(&c.mu)
	return c
}

// Read blocks for one full frame. A paused channel drains in-flight
// bytes (this call still returns the frame the underlying medium already
// delivered) but a subsequent call blocks until Resume.
func (c *Channel) Read() (wire.Frame, error) {
	c.mu.Lock()
	for c.paused && !c.closed {
		c.resumeCond.Wait()
	}
	if c.closed {
		c.mu.Unlock()
		return wire.Frame{}, ErrChannelClosed
	}
	enc := c.enc
	framesAreMessages := c.raw.FramesAreMessages()
	reader := c.reader
	c.mu.Unlock()

	var body []byte
	var err error
	if framesAreMessages {
		buf := make([]byte, wire.MaxFrameSize)
		var n int
		n, err = c.raw.Read(buf)
		if err == nil {
			body = buf[:n]
		}
	} else {
		body, err = wire.ReadLengthPrefixedBody(reader)
	}
	if err != nil {
		c.fail(ReasonIOError)
		return wire.Frame{}, fmt.Errorf("channel: read: %w", err)
	}
	if enc != nil {
		body, err = enc.Decrypt(body)
		if err != nil {
			c.fail(ReasonIOError)
			return wire.Frame{}, fmt.Errorf("channel: decrypt: %w", err)
		}
	}
	f, err := wire.DecodeFrameBytes(body)
	if err != nil {
		c.fail(ReasonIOError)
		return wire.Frame{}, fmt.Errorf("channel: decode: %w", err)
	}

	c.mu.Lock()
	c.lastReadAt = time.Now()
	c.mu.Unlock()
	return f, nil
}

// Write serializes f onto the wire. A paused writer blocks until Resume.
func (c *Channel) Write(f wire.Frame) error {
	c.mu.Lock()
	for c.paused && !c.closed {
		c.resumeCond.Wait()
	}
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	enc := c.enc
	framesAreMessages := c.raw.FramesAreMessages()
	c.mu.Unlock()

	if framesAreMessages {
		body, err := wire.EncodeFrameBytes(f)
		if err != nil {
			return fmt.Errorf("channel: encode: %w", err)
		}
		if enc != nil {
			body, err = enc.Encrypt(body)
			if err != nil {
				return fmt.Errorf("channel: encrypt: %w", err)
			}
		}
		if _, err := c.raw.Write(body); err != nil {
			c.fail(ReasonIOError)
			return fmt.Errorf("channel: write: %w", err)
		}
		return nil
	}

	body, err := wire.EncodeFrameBytes(f)
	if err != nil {
		return fmt.Errorf("channel: encode: %w", err)
	}
	if enc != nil {
		body, err = enc.Encrypt(body)
		if err != nil {
			return fmt.Errorf("channel: encrypt: %w", err)
		}
	}
	buf, err := wire.WriteLengthPrefixedBody(body)
	if err != nil {
		return fmt.Errorf("channel: frame: %w", err)
	}
	if _, err := c.raw.Write(buf); err != nil {
		c.fail(ReasonIOError)
		return fmt.Errorf("channel: write: %w", err)
	}
	return nil
}

// RunHandshake drives hr over the channel's unencrypted raw bytes,
// framing each handshake message the same way Read/Write frame an
// ordinary wire.Frame (one Read/Write per message on message-oriented
// mediums, length-prefixed on stream mediums). It must be called before
// EnableEncryption and before the channel is registered with an
// endpoint.Manager, since it bypasses the frame codec entirely.
func (c *Channel) RunHandshake(hr HandshakeRunner, initiator bool) (*EncryptionContext, error) {
	messages := c.raw.FramesAreMessages()
	send := func(b []byte) error {
		if messages {
			_, err := c.raw.Write(b)
			return err
		}
		buf, err := wire.WriteLengthPrefixedBody(b)
		if err != nil {
			return err
		}
		_, err = c.raw.Write(buf)
		return err
	}
	recv := func() ([]byte, error) {
		if messages {
			buf := make([]byte, wire.MaxFrameSize)
			n, err := c.raw.Read(buf)
			if err != nil {
				return nil, err
			}
			return buf[:n], nil
		}
		return wire.ReadLengthPrefixedBody(c.reader)
	}

	var ctx *EncryptionContext
	var err error
	if initiator {
		ctx, err = hr.RunInitiator(send, recv)
	} else {
		ctx, err = hr.RunResponder(send, recv)
	}
	if err != nil {
		return nil, fmt.Errorf("channel: handshake: %w", err)
	}
	return ctx, nil
}

// EnableEncryption installs ctx. Per spec §4.2, the transition is
// one-way: frames written after this point are encrypted, frames written
// before it were not, fence-posted by the handshake completion exchanged
// in the clear. Calling this twice is a programmer error the caller must
// not do; the second call is a no-op here to keep the one-way invariant
// rather than panicking mid-session.
func (c *Channel) EnableEncryption(ctx *EncryptionContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc != nil {
		return
	}
	c.enc = ctx
	c.log.Debug("encryption enabled")
}

// Pause blocks the writer and, after in-flight bytes drain, the reader.
func (c *Channel) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume releases a paused channel's reader and writer.
func (c *Channel) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
	c.resumeCond.Broadcast()
}

// Close tears the channel down permanently. A paused channel can still be
// closed, per spec §4.2.
func (c *Channel) Close(reason CloseReason) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeReason = reason
	c.mu.Unlock()
	c.resumeCond.Broadcast()
	c.log.Debug("channel closed", "reason", reason)
	return c.raw.Close()
}

func (c *Channel) fail(reason CloseReason) {
	_ = c.Close(reason)
}

// GetMedium reports which medium currently backs this channel.
func (c *Channel) GetMedium() medium.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.medium
}

// LastReadAt reports the timestamp of the last successfully read frame,
// used by the endpoint manager's keep-alive timeout logic.
func (c *Channel) LastReadAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReadAt
}

// IsClosed reports whether the channel has permanently failed or been
// torn down.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ io.Closer = (*Channel)(nil)
