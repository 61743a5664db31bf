package config

// Config represents the complete exthost configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	State   StateConfig   `yaml:"state"`
	Status  StatusConfig  `yaml:"status,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// StateConfig defines where the memento database lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig defines the optional HTTP status server.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Defaults returns a Config with sensible defaults. The host is normally
// spawned by the main process without any config on disk, so defaults
// must stand on their own.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "exthost",
			LogLevel: "info",
		},
		State: StateConfig{
			Path: "data/exthost.db",
		},
		Status: StatusConfig{
			Enabled: false,
			Listen:  "127.0.0.1:7621",
		},
	}
}
