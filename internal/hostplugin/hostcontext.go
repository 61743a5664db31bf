package hostplugin

import (
	"log/slog"

	"github.com/kiteleaf/exthost/internal/emitter"
	"github.com/kiteleaf/exthost/internal/rpc"
)

// HostContext is the explicitly constructed engine/emitter pair shared by
// the manager and every plugin hook. Passing it around instead of leaning
// on package globals keeps the lifecycle testable without process-level
// mocking.
type HostContext struct {
	Engine  *rpc.Engine
	Emitter *emitter.Emitter
	Logger  *slog.Logger
}
