// Package channel binds a duplex byte stream (normally the host process
// stdio) to the frame protocol. Inbound bytes are split into
// newline-delimited frames, decoded, and handed to registered callbacks in
// arrival order; outbound frames are serialized onto the writer.
package channel

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kiteleaf/exthost/internal/log"
	"github.com/kiteleaf/exthost/internal/protocol"
)

// maxFrameBytes caps the size of a single inbound frame.
const maxFrameBytes = 8 * 1024 * 1024

// Channel is one side of the main ⇄ host frame pipe.
//
// Send is best-effort: once the peer is gone every send attempt is
// silently dropped. Inbound frames are delivered exactly once each, in
// arrival order, from the single Run goroutine; malformed payloads are
// logged and dropped without stopping the loop.
type Channel struct {
	reader io.Reader
	logger *slog.Logger

	writeMu sync.Mutex
	writer  io.Writer

	closed atomic.Bool

	hookMu   sync.Mutex
	onFrame  []func(*protocol.Frame)
	onClose  []func()
	closeRan bool
}

// New creates a Channel over the given byte streams.
func New(r io.Reader, w io.Writer) *Channel {
	return &Channel{
		reader: r,
		writer: w,
		logger: log.WithComponent("channel"),
	}
}

// OnFrame registers a callback invoked once per decoded inbound frame.
// Callbacks run on the Run goroutine, so frame handling is strictly
// sequential with respect to this channel.
func (c *Channel) OnFrame(fn func(*protocol.Frame)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onFrame = append(c.onFrame, fn)
}

// OnClose registers a callback invoked exactly once when the channel dies,
// whether by peer EOF, context cancellation, or Close.
func (c *Channel) OnClose(fn func()) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Run drains the inbound stream until EOF, read error, or ctx
// cancellation. It is a blocking call; the caller owns the goroutine.
func (c *Channel) Run(ctx context.Context) error {
	defer c.markClosed()

	scanner := bufio.NewScanner(c.reader)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		frame, err := protocol.Decode(line)
		if err != nil {
			// Malformed frame: drop it, keep the channel alive.
			c.logger.Error("dropping malformed frame", "error", err)
			continue
		}

		c.hookMu.Lock()
		handlers := c.onFrame
		c.hookMu.Unlock()

		for _, fn := range handlers {
			fn(frame)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		c.logger.Warn("channel read ended", "error", err)
		return err
	}
	c.logger.Info("channel closed by peer")
	return nil
}

// Send enqueues one outbound frame. It never surfaces transport errors to
// the caller: after the peer is gone sends become no-ops.
func (c *Channel) Send(f *protocol.Frame) {
	if c.closed.Load() {
		c.logger.Debug("send dropped, channel closed", "kind", f.Kind, "id", f.ID)
		return
	}

	data, err := protocol.Encode(f)
	if err != nil {
		c.logger.Error("failed to encode outbound frame", "kind", f.Kind, "id", f.ID, "error", err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(append(data, '\n')); err != nil {
		c.logger.Debug("send dropped, peer gone", "kind", f.Kind, "id", f.ID, "error", err)
		c.markClosed()
	}
}

// Close marks the channel dead and fires close hooks. It does not close
// the underlying streams; their lifetime belongs to the process.
func (c *Channel) Close() {
	c.markClosed()
}

// Closed reports whether the channel is still usable.
func (c *Channel) Closed() bool {
	return c.closed.Load()
}

func (c *Channel) markClosed() {
	c.closed.Store(true)

	c.hookMu.Lock()
	ran := c.closeRan
	c.closeRan = true
	hooks := c.onClose
	c.hookMu.Unlock()

	if ran {
		return
	}
	for _, fn := range hooks {
		fn()
	}
}
