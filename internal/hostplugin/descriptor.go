// Package hostplugin owns the catalog of extensions assigned to this host
// process and drives their two-phase lifecycle: partition during init,
// then load/activate per backend plugin, with failures isolated per
// extension.
package hostplugin

// Model declares which entry points an extension ships. The entry-point
// shape alone determines whether the extension runs in this process
// (backend) or is relayed to the main process (frontend).
type Model struct {
	BackendEntry  string `json:"backendEntry,omitempty"`
	FrontendEntry string `json:"frontendEntry,omitempty"`
}

// Lifecycle names the optional initializer modules for each side.
type Lifecycle struct {
	BackendInitPath  string `json:"backendInitPath,omitempty"`
	FrontendInitPath string `json:"frontendInitPath,omitempty"`
}

// Descriptor is the static per-extension metadata handed over by the main
// process manifest. Immutable after creation.
type Descriptor struct {
	ID        string    `json:"id"`
	Model     Model     `json:"model"`
	Lifecycle Lifecycle `json:"lifecycle"`
}

// Plugin is the host's resolved view of a descriptor assigned to this
// process: entry-point path, resolved initializer path (empty when the
// descriptor names none), and a reference back to the originating
// descriptor and raw model. Created once during init, never mutated.
type Plugin struct {
	ID         string     `json:"id"`
	EntryPath  string     `json:"entryPath"`
	InitPath   string     `json:"initPath,omitempty"`
	Descriptor Descriptor `json:"descriptor"`
	Model      Model      `json:"model"`
}
