package hostplugin

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/kiteleaf/exthost/internal/log"
)

// LoadState tracks where a plugin is in its lifecycle.
type LoadState string

const (
	StatePartitioned LoadState = "partitioned"
	StateInitialized LoadState = "initialized"
	StateLoaded      LoadState = "loaded"
	StateLoadFailed  LoadState = "load_failed"
)

// LoadRecord is one plugin's lifecycle outcome. Collecting these into a
// report keeps partial failure visible locally (logs, status API) without
// widening the remote protocol.
type LoadRecord struct {
	Plugin      string    `json:"plugin"`
	State       LoadState `json:"state"`
	Error       string    `json:"error,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Manager drives the two-phase extension lifecycle for this host process.
// Phase one (Init) partitions descriptors into backend and frontend
// buckets, running backend initializer hooks on the way. Phase two
// (LoadPlugin, once per backend plugin) activates entry modules. A
// failure in one extension never aborts its siblings.
type Manager struct {
	host   *HostContext
	loader ModuleLoader
	logger *slog.Logger

	mu     sync.Mutex
	report map[string]*LoadRecord
}

func NewManager(host *HostContext, loader ModuleLoader) *Manager {
	return &Manager{
		host:   host,
		loader: loader,
		logger: log.WithComponent("hostplugin"),
		report: make(map[string]*LoadRecord),
	}
}

// Init partitions descriptors by entry-point shape. Backend plugins get
// their initializer hook run before they appear in the returned bucket;
// frontend plugins are returned unexecuted for the caller to relay; a
// descriptor with neither entry point is excluded from both buckets.
func (m *Manager) Init(ctx context.Context, descriptors []Descriptor) (backend, frontend []Plugin, err error) {
	backend = make([]Plugin, 0, len(descriptors))
	frontend = make([]Plugin, 0)

	for _, desc := range descriptors {
		if ctx.Err() != nil {
			return backend, frontend, ctx.Err()
		}

		switch {
		case desc.Model.BackendEntry != "":
			p := Plugin{
				ID:         desc.ID,
				EntryPath:  desc.Model.BackendEntry,
				InitPath:   desc.Lifecycle.BackendInitPath,
				Descriptor: desc,
				Model:      desc.Model,
			}
			m.record(p.ID, StatePartitioned, nil)

			if p.InitPath != "" {
				if err := m.runInitializer(ctx, p); err != nil {
					log.WithPlugin(p.ID).Error("initializer failed, plugin excluded", "path", p.InitPath, "error", err)
					m.record(p.ID, StateLoadFailed, err)
					continue
				}
			}
			m.record(p.ID, StateInitialized, nil)
			backend = append(backend, p)

		case desc.Model.FrontendEntry != "":
			frontend = append(frontend, Plugin{
				ID:         desc.ID,
				EntryPath:  desc.Model.FrontendEntry,
				InitPath:   desc.Lifecycle.FrontendInitPath,
				Descriptor: desc,
				Model:      desc.Model,
			})

		default:
			log.WithPlugin(desc.ID).Debug("descriptor has no entry point, excluded")
		}
	}

	m.logger.Info("partition complete", "backend", len(backend), "frontend", len(frontend), "total", len(descriptors))
	return backend, frontend, nil
}

// LoadPlugin activates one backend plugin: optional DoLoad hook first,
// then the entry module. The returned error is for local callers and the
// load report only; it is never surfaced to the remote caller.
func (m *Manager) LoadPlugin(ctx context.Context, path string, p Plugin) error {
	plog := log.WithPlugin(p.ID)
	if path == "" {
		path = p.EntryPath
	}

	if fp := fingerprint(path); fp != "" {
		m.setFingerprint(p.ID, fp)
		plog.Debug("entry module fingerprint", "path", path, "blake3", fp)
	}

	if p.InitPath != "" {
		if err := m.runLoadHook(ctx, p); err != nil {
			plog.Error("doLoad hook failed", "path", p.InitPath, "error", err)
			m.record(p.ID, StateLoadFailed, err)
			return err
		}
	}

	mod, err := m.loader.Load(path)
	if err != nil {
		plog.Error("entry module load failed", "path", path, "error", err)
		m.record(p.ID, StateLoadFailed, err)
		return err
	}

	if entry, ok := mod.(Entry); ok {
		if err := entry.Start(ctx, m.host, p); err != nil {
			plog.Error("entry module start failed", "path", path, "error", err)
			m.record(p.ID, StateLoadFailed, err)
			return err
		}
	}

	m.record(p.ID, StateLoaded, nil)
	plog.Info("plugin loaded", "path", path)
	return nil
}

// Report returns a snapshot of every known plugin's lifecycle record.
func (m *Manager) Report() []LoadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]LoadRecord, 0, len(m.report))
	for _, r := range m.report {
		out = append(out, *r)
	}
	return out
}

func (m *Manager) runInitializer(ctx context.Context, p Plugin) error {
	mod, err := m.loader.Load(p.InitPath)
	if err != nil {
		return err
	}

	if init, ok := mod.(Initializer); ok {
		return init.DoInitialization(ctx, m.host, m, p)
	}
	// A module without the hook is legal; loading it was the point.
	return nil
}

func (m *Manager) runLoadHook(ctx context.Context, p Plugin) error {
	mod, err := m.loader.Load(p.InitPath)
	if err != nil {
		return err
	}

	if hook, ok := mod.(LoadHook); ok {
		return hook.DoLoad(ctx, m.host, p)
	}
	return nil
}

func (m *Manager) record(id string, state LoadState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.report[id]
	if !ok {
		r = &LoadRecord{Plugin: id}
		m.report[id] = r
	}
	r.State = state
	r.UpdatedAt = time.Now().UTC()
	r.Error = ""
	if err != nil {
		r.Error = err.Error()
	}
}

func (m *Manager) setFingerprint(id, fp string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.report[id]
	if !ok {
		r = &LoadRecord{Plugin: id, State: StatePartitioned}
		m.report[id] = r
	}
	r.Fingerprint = fp
}

// fingerprint hashes the module file with BLAKE3. Best-effort: in-memory
// modules have no backing file and yield an empty fingerprint.
func fingerprint(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
