package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiteleaf/exthost/internal/rpc"
)

// StorageProxyID is the well-known proxy identifier the memento store is
// reachable under.
const StorageProxyID = "HOSTED_PLUGIN_STORAGE_EXT"

// Service adapts the Store to the engine's Callable interface.
type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

// RegisterService exposes the store on the engine under StorageProxyID.
func RegisterService(e *rpc.Engine, store *Store) error {
	return e.Register(StorageProxyID, NewService(store))
}

func (s *Service) Invoke(ctx context.Context, method string, args []json.RawMessage) (any, error) {
	switch method {
	case "get":
		plugin, key, err := decodePluginKey(args)
		if err != nil {
			return nil, fmt.Errorf("get: %w", err)
		}
		return s.store.Get(ctx, plugin, key)

	case "set":
		if len(args) != 3 {
			return nil, fmt.Errorf("set expects 3 arguments, got %d", len(args))
		}
		plugin, key, err := decodePluginKey(args[:2])
		if err != nil {
			return nil, fmt.Errorf("set: %w", err)
		}
		return nil, s.store.Set(ctx, plugin, key, args[2])

	case "keys":
		if len(args) != 1 {
			return nil, fmt.Errorf("keys expects 1 argument, got %d", len(args))
		}
		var plugin string
		if err := json.Unmarshal(args[0], &plugin); err != nil {
			return nil, fmt.Errorf("keys: decode plugin id: %w", err)
		}
		return s.store.Keys(ctx, plugin)

	default:
		return nil, fmt.Errorf("unknown method %q on %s", method, StorageProxyID)
	}
}

func decodePluginKey(args []json.RawMessage) (plugin, key string, err error) {
	if len(args) < 2 {
		return "", "", fmt.Errorf("expected plugin id and key, got %d arguments", len(args))
	}
	if err := json.Unmarshal(args[0], &plugin); err != nil {
		return "", "", fmt.Errorf("decode plugin id: %w", err)
	}
	if err := json.Unmarshal(args[1], &key); err != nil {
		return "", "", fmt.Errorf("decode key: %w", err)
	}
	return plugin, key, nil
}
