// The hello extension is a minimal backend module for exercising the
// host end to end. Build it with:
//
//	go build -buildmode=plugin -o hello.so ./extensions/hello
//
// and hand the host a descriptor whose backendEntry and backendInitPath
// both point at hello.so.
package main

import (
	"context"
	"encoding/json"

	"github.com/kiteleaf/exthost/internal/hostplugin"
	"github.com/kiteleaf/exthost/internal/rpc"
)

type helloExtension struct{}

// Extension is the symbol the host's loader resolves.
var Extension hostplugin.Module = helloExtension{}

// DoInitialization registers the extension's own proxy before activation
// so the main process can address it as soon as init returns.
func (helloExtension) DoInitialization(ctx context.Context, host *hostplugin.HostContext, mgr *hostplugin.Manager, p hostplugin.Plugin) error {
	return host.Engine.Register("ext."+p.ID, rpc.CallableFunc(
		func(ctx context.Context, method string, args []json.RawMessage) (any, error) {
			switch method {
			case "greet":
				name := "world"
				if len(args) > 0 {
					_ = json.Unmarshal(args[0], &name)
				}
				return "hello, " + name, nil
			default:
				return nil, &protocolError{method}
			}
		}))
}

// Start runs when the entry module is loaded.
func (helloExtension) Start(ctx context.Context, host *hostplugin.HostContext, p hostplugin.Plugin) error {
	if host.Logger != nil {
		host.Logger.Info("hello extension activated", "plugin", p.ID)
	}
	return nil
}

type protocolError struct {
	method string
}

func (e *protocolError) Error() string {
	return "hello extension has no method " + e.method
}

func main() {}
