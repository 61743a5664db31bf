// Package rpc multiplexes many named remote interfaces over a single
// ordered frame stream: outbound calls are correlated to reply frames by
// id, inbound calls are dispatched to locally registered callables.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiteleaf/exthost/internal/emitter"
	"github.com/kiteleaf/exthost/internal/log"
	"github.com/kiteleaf/exthost/internal/protocol"
)

var (
	// ErrChannelClosed rejects calls whose transport died before a reply
	// arrived. All pending calls fail with it at once when the channel
	// goes away.
	ErrChannelClosed = errors.New("rpc: channel closed")

	// ErrProxyRegistered reports a duplicate proxy identifier. Identifiers
	// are registered exactly once per side.
	ErrProxyRegistered = errors.New("rpc: proxy identifier already registered")
)

// Transport is the outbound half of the frame channel the engine writes to.
type Transport interface {
	Send(*protocol.Frame)
}

// Callable is a locally registered object the peer can invoke by proxy
// identifier. Invoke returns the method result (serialized to JSON by the
// engine) or an error, which the engine converts into an error reply; it
// never crosses the channel as a raw Go value.
type Callable interface {
	Invoke(ctx context.Context, method string, args []json.RawMessage) (any, error)
}

// CallableFunc adapts a function to the Callable interface.
type CallableFunc func(ctx context.Context, method string, args []json.RawMessage) (any, error)

func (f CallableFunc) Invoke(ctx context.Context, method string, args []json.RawMessage) (any, error) {
	return f(ctx, method, args)
}

type pendingCall struct {
	reply chan *protocol.Frame // buffered, capacity 1
	at    time.Time
}

// Engine is one side's RPC endpoint. A single Engine instance serves all
// proxy identifiers multiplexed through one channel.
type Engine struct {
	transport Transport
	logger    *slog.Logger

	mu       sync.Mutex
	pending  map[string]*pendingCall
	registry map[string]Callable
	closed   bool

	done chan struct{} // closed on shutdown

	dispatchCtx    context.Context
	cancelDispatch context.CancelFunc
}

// New creates an engine bound to the transport and subscribes it to the
// emitter that carries decoded inbound frames.
func New(t Transport, em *emitter.Emitter) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		transport:      t,
		logger:         log.WithComponent("rpc"),
		pending:        make(map[string]*pendingCall),
		registry:       make(map[string]Callable),
		done:           make(chan struct{}),
		dispatchCtx:    ctx,
		cancelDispatch: cancel,
	}
	em.Subscribe(e.handleFrame)
	return e
}

// Register exposes target under the proxy identifier. Registering the
// same identifier twice is a programming error and is rejected.
func (e *Engine) Register(proxy string, target Callable) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry[proxy]; ok {
		return fmt.Errorf("%w: %s", ErrProxyRegistered, proxy)
	}
	e.registry[proxy] = target
	e.logger.Debug("proxy registered", "proxy", proxy)
	return nil
}

// Call invokes method on the peer's proxy and blocks until the matching
// reply frame arrives, ctx is done, or the channel closes. Arguments are
// serialized to JSON positionally.
func (e *Engine) Call(ctx context.Context, proxy, method string, args ...any) (json.RawMessage, error) {
	rawArgs := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("rpc: marshal argument %d for %s.%s: %w", i, proxy, method, err)
		}
		rawArgs = append(rawArgs, raw)
	}

	id := uuid.NewString()
	pc := &pendingCall{
		reply: make(chan *protocol.Frame, 1),
		at:    time.Now(),
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrChannelClosed
	}
	e.pending[id] = pc
	e.mu.Unlock()

	e.transport.Send(protocol.NewCall(id, proxy, method, rawArgs))

	select {
	case reply, ok := <-pc.reply:
		if !ok {
			return nil, ErrChannelClosed
		}
		if reply.IsError() {
			return nil, reply.Error
		}
		return reply.Result, nil
	case <-ctx.Done():
		e.removePending(id)
		return nil, ctx.Err()
	case <-e.done:
		e.removePending(id)
		return nil, ErrChannelClosed
	}
}

// PendingCalls returns the number of calls still awaiting replies.
func (e *Engine) PendingCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Shutdown fails every pending call with ErrChannelClosed and stops
// inbound dispatch. Wired to the channel's close hook by the bootstrap.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	stale := e.pending
	e.pending = make(map[string]*pendingCall)
	e.mu.Unlock()

	close(e.done)
	e.cancelDispatch()

	for id, pc := range stale {
		e.logger.Warn("failing pending call, channel closed", "correlation_id", id, "age", time.Since(pc.at))
		close(pc.reply)
	}
}

func (e *Engine) removePending(id string) {
	e.mu.Lock()
	delete(e.pending, id)
	e.mu.Unlock()
}

// handleFrame processes one inbound frame. It runs on the channel read
// loop, so decode and correlation are strictly sequential; only handler
// execution for inbound calls is spun off, since a handler may itself
// issue nested outbound calls whose replies must remain receivable.
func (e *Engine) handleFrame(f *protocol.Frame) {
	switch f.Kind {
	case protocol.KindCall:
		e.dispatchCall(f)
	case protocol.KindReply:
		e.correlateReply(f)
	}
}

func (e *Engine) dispatchCall(f *protocol.Frame) {
	e.mu.Lock()
	target, ok := e.registry[f.Proxy]
	e.mu.Unlock()

	if !ok {
		e.logger.Warn("call for unregistered proxy", "proxy", f.Proxy, "method", f.Method)
		e.transport.Send(protocol.NewErrorReply(f.ID, protocol.CodeUnknownIdentifier,
			fmt.Sprintf("no object registered under %q", f.Proxy)))
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("handler panicked", "proxy", f.Proxy, "method", f.Method, "panic", r)
				e.transport.Send(protocol.NewErrorReply(f.ID, protocol.CodeMethodFailure,
					fmt.Sprintf("%s.%s panicked: %v", f.Proxy, f.Method, r)))
			}
		}()

		result, err := target.Invoke(e.dispatchCtx, f.Method, f.Args)
		if err != nil {
			e.logger.Warn("handler returned error", "proxy", f.Proxy, "method", f.Method, "error", err)
			e.transport.Send(protocol.NewErrorReply(f.ID, protocol.CodeMethodFailure, err.Error()))
			return
		}

		var raw json.RawMessage
		if result != nil {
			raw, err = json.Marshal(result)
			if err != nil {
				e.logger.Error("handler result not serializable", "proxy", f.Proxy, "method", f.Method, "error", err)
				e.transport.Send(protocol.NewErrorReply(f.ID, protocol.CodeMethodFailure,
					fmt.Sprintf("result of %s.%s is not serializable", f.Proxy, f.Method)))
				return
			}
		}
		e.transport.Send(protocol.NewReply(f.ID, raw))
	}()
}

func (e *Engine) correlateReply(f *protocol.Frame) {
	e.mu.Lock()
	pc, ok := e.pending[f.ID]
	if ok {
		delete(e.pending, f.ID)
	}
	e.mu.Unlock()

	if !ok {
		// Unknown or duplicate correlation id. Protocol desync must not
		// crash the process.
		e.logger.Warn("reply with no pending call", "correlation_id", f.ID)
		return
	}
	pc.reply <- f
}
