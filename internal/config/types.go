package config

// Config is the complete host configuration.
type Config struct {
	Service ServiceConfig         `yaml:"service"`
	State   StateConfig           `yaml:"state"`
	API     APIConfig             `yaml:"api,omitempty"`
	Trigger TriggerConfig         `yaml:"trigger,omitempty"`
	Scripts ScriptsConfig         `yaml:"scripts,omitempty"`
	Tasks   map[string]TaskConfig `yaml:"tasks"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. An empty key leaves the
// API open, for local development only.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// TriggerConfig holds the credentials for forwarding runs to a remote
// trigger API. Use Resolve to apply the environment fallback chain.
type TriggerConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// ScriptsConfig overrides the interpreter binaries for all tasks. The
// TRIGGER_PYTHON_BIN and TRIGGER_RAILS_BIN environment variables take
// precedence when set.
type ScriptsConfig struct {
	PythonBin string `yaml:"python_bin,omitempty"`
	RailsBin  string `yaml:"rails_bin,omitempty"`
}

// TaskConfig defines a named task: the script it runs and how to run it.
type TaskConfig struct {
	Script     string            `yaml:"script"`
	Rails      bool              `yaml:"rails,omitempty"`
	WorkingDir string            `yaml:"working_dir,omitempty"`
	Args       []string          `yaml:"args,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "triggerhost",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/triggerhost.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Trigger: TriggerConfig{
			APIURL: DefaultTriggerAPIURL,
		},
		Tasks: make(map[string]TaskConfig),
	}
}
