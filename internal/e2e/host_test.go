// Package e2e exercises the full host stack over an in-memory duplex
// channel: main-side engine ⇄ frames ⇄ host-side engine, plugin manager
// and storage service registered exactly as the bootstrap wires them.
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiteleaf/exthost/internal/channel"
	"github.com/kiteleaf/exthost/internal/emitter"
	"github.com/kiteleaf/exthost/internal/hostplugin"
	"github.com/kiteleaf/exthost/internal/protocol"
	"github.com/kiteleaf/exthost/internal/rpc"
	"github.com/kiteleaf/exthost/internal/state"
	"github.com/kiteleaf/exthost/internal/storage"
)

type side struct {
	channel *channel.Channel
	engine  *rpc.Engine
}

// newPair wires two engines together through real channels over in-memory
// pipes, mirroring the production bootstrap on both sides.
func newPair(t *testing.T) (main, host *side) {
	t.Helper()

	mainRead, hostWrite := io.Pipe()
	hostRead, mainWrite := io.Pipe()

	build := func(r io.Reader, w io.Writer) *side {
		ch := channel.New(r, w)
		em := emitter.New()
		ch.OnFrame(em.Publish)
		engine := rpc.New(ch, em)
		ch.OnClose(engine.Shutdown)
		return &side{channel: ch, engine: engine}
	}

	main = build(mainRead, mainWrite)
	host = build(hostRead, hostWrite)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = mainWrite.Close()
		_ = hostWrite.Close()
	})

	go func() { _ = main.channel.Run(ctx) }()
	go func() { _ = host.channel.Run(ctx) }()

	return main, host
}

type initializerModule struct {
	registered bool
}

func (m *initializerModule) DoInitialization(ctx context.Context, hc *hostplugin.HostContext, mgr *hostplugin.Manager, p hostplugin.Plugin) error {
	// Extensions use this hook to register protocol handlers before
	// activation; do exactly that.
	m.registered = true
	return hc.Engine.Register("ext."+p.ID, rpc.CallableFunc(
		func(ctx context.Context, method string, args []json.RawMessage) (any, error) {
			return "pong:" + method, nil
		}))
}

type entryModule struct {
	started chan string
}

func (m *entryModule) Start(ctx context.Context, hc *hostplugin.HostContext, p hostplugin.Plugin) error {
	m.started <- p.ID
	return nil
}

func TestInitAndLoadOverRealChannel(t *testing.T) {
	mainSide, hostSide := newPair(t)

	reg := hostplugin.NewRegistry()
	init := &initializerModule{}
	entryA := &entryModule{started: make(chan string, 1)}
	entryC := &entryModule{started: make(chan string, 1)}
	reg.Add("a.js", entryA)
	reg.Add("c.js", entryC)
	reg.Add("c-init.js", init)

	hc := &hostplugin.HostContext{Engine: hostSide.engine}
	mgr := hostplugin.NewManager(hc, reg)
	require.NoError(t, hostplugin.RegisterService(hostSide.engine, mgr))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	descriptors := []hostplugin.Descriptor{
		{ID: "a", Model: hostplugin.Model{BackendEntry: "a.js"}},
		{ID: "b", Model: hostplugin.Model{FrontendEntry: "b.js"}},
		{ID: "c", Model: hostplugin.Model{BackendEntry: "c.js"},
			Lifecycle: hostplugin.Lifecycle{BackendInitPath: "c-init.js"}},
	}

	raw, err := mainSide.engine.Call(ctx, hostplugin.ManagerProxyID, "init", descriptors)
	require.NoError(t, err)

	var result hostplugin.InitResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Backend, 2)
	require.Len(t, result.Frontend, 1)
	assert.Equal(t, "b", result.Frontend[0].ID)
	assert.True(t, init.registered, "initializer must run during init")

	// The proxy the initializer registered is callable from the main side.
	raw, err = mainSide.engine.Call(ctx, "ext.c", "ping")
	require.NoError(t, err)
	assert.JSONEq(t, `"pong:ping"`, string(raw))

	// Load both backend plugins the way the main process would.
	for _, p := range result.Backend {
		_, err := mainSide.engine.Call(ctx, hostplugin.ManagerProxyID, "loadPlugin", p.EntryPath, p)
		require.NoError(t, err)
	}
	assert.Equal(t, "a", <-entryA.started)
	assert.Equal(t, "c", <-entryC.started)
}

func TestLoadFailureIsInvisibleToCaller(t *testing.T) {
	mainSide, hostSide := newPair(t)

	mgr := hostplugin.NewManager(&hostplugin.HostContext{Engine: hostSide.engine}, hostplugin.NewRegistry())
	require.NoError(t, hostplugin.RegisterService(hostSide.engine, mgr))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := hostplugin.Plugin{ID: "broken", EntryPath: "broken.js"}
	_, err := mainSide.engine.Call(ctx, hostplugin.ManagerProxyID, "loadPlugin", "broken.js", p)
	assert.NoError(t, err, "loadPlugin failures are log-only")
}

func TestUnknownProxyOverRealChannel(t *testing.T) {
	mainSide, _ := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := mainSide.engine.Call(ctx, "no-such-proxy", "anything")
	var remote *protocol.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, protocol.CodeUnknownIdentifier, remote.Code)
}

func TestStorageServiceOverRealChannel(t *testing.T) {
	mainSide, hostSide := newPair(t)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, state.RegisterService(hostSide.engine, state.NewStore(db)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = mainSide.engine.Call(ctx, state.StorageProxyID, "set", "ext.a", "theme", "dark")
	require.NoError(t, err)

	raw, err := mainSide.engine.Call(ctx, state.StorageProxyID, "get", "ext.a", "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(raw))
}

func TestPeerDeathFailsPendingCalls(t *testing.T) {
	mainSide, hostSide := newPair(t)

	// Tear the transport down while a call is pending on a proxy that
	// never answers.
	mgrBlock := rpc.CallableFunc(func(ctx context.Context, method string, args []json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, hostSide.engine.Register("slow", mgrBlock))

	done := make(chan error, 1)
	go func() {
		_, err := mainSide.engine.Call(context.Background(), "slow", "wait")
		done <- err
	}()

	// Give the call time to reach the host, then kill the transport.
	time.Sleep(100 * time.Millisecond)
	mainSide.channel.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, rpc.ErrChannelClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("pending call not failed after channel closure")
	}
	assert.Zero(t, mainSide.engine.PendingCalls())
}
