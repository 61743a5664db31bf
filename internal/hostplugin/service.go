package hostplugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kiteleaf/exthost/internal/log"
	"github.com/kiteleaf/exthost/internal/rpc"
)

// ManagerProxyID is the well-known proxy identifier the manager is
// reachable under. The main process must use exactly this name.
const ManagerProxyID = "HOSTED_PLUGIN_MANAGER_EXT"

// InitResult is the serialized shape of the init call's partition.
type InitResult struct {
	Backend  []Plugin `json:"backend"`
	Frontend []Plugin `json:"frontend"`
}

// Service adapts the Manager to the engine's Callable interface.
type Service struct {
	mgr    *Manager
	logger *slog.Logger
}

func NewService(mgr *Manager) *Service {
	return &Service{
		mgr:    mgr,
		logger: log.WithProxy(ManagerProxyID),
	}
}

// RegisterService exposes the manager on the engine under ManagerProxyID.
func RegisterService(e *rpc.Engine, mgr *Manager) error {
	return e.Register(ManagerProxyID, NewService(mgr))
}

func (s *Service) Invoke(ctx context.Context, method string, args []json.RawMessage) (any, error) {
	switch method {
	case "init":
		return s.init(ctx, args)
	case "loadPlugin":
		return nil, s.loadPlugin(ctx, args)
	default:
		return nil, fmt.Errorf("unknown method %q on %s", method, ManagerProxyID)
	}
}

func (s *Service) init(ctx context.Context, args []json.RawMessage) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("init expects 1 argument, got %d", len(args))
	}

	var descriptors []Descriptor
	if err := json.Unmarshal(args[0], &descriptors); err != nil {
		return nil, fmt.Errorf("init: decode descriptors: %w", err)
	}

	s.logger.Info("init received", "descriptors", len(descriptors))
	backend, frontend, err := s.mgr.Init(ctx, descriptors)
	if err != nil {
		return nil, err
	}
	return InitResult{Backend: backend, Frontend: frontend}, nil
}

func (s *Service) loadPlugin(ctx context.Context, args []json.RawMessage) error {
	if len(args) != 2 {
		return fmt.Errorf("loadPlugin expects 2 arguments, got %d", len(args))
	}

	var path string
	if err := json.Unmarshal(args[0], &path); err != nil {
		return fmt.Errorf("loadPlugin: decode path: %w", err)
	}

	var p Plugin
	if err := json.Unmarshal(args[1], &p); err != nil {
		return fmt.Errorf("loadPlugin: decode plugin: %w", err)
	}

	// Load failures are reported via log and the load report only; the
	// remote caller always gets a void success so one broken extension
	// cannot fail the overall sequence.
	_ = s.mgr.LoadPlugin(ctx, path, p)
	return nil
}
