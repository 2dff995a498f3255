package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("config: invalid configuration")

// ErrUnknownFormat is returned for a file that is neither TOML nor YAML.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Config is the complete host configuration.
type Config struct {
	Log        LogConfig        `toml:"log" yaml:"log"`
	Router     RouterConfig     `toml:"router" yaml:"router"`
	Session    SessionConfig    `toml:"session" yaml:"session"`
	Extensions ExtensionsConfig `toml:"extensions" yaml:"extensions"`
	Workspace  WorkspaceConfig  `toml:"workspace" yaml:"workspace"`
	HTTP       HTTPConfig       `toml:"http" yaml:"http"`
	Telemetry  TelemetryConfig  `toml:"telemetry" yaml:"telemetry"`
	Messages   MessagesConfig   `toml:"messages" yaml:"messages"`

	// Settings is the initial settings document served to extensions
	// through workspace/configuration.
	Settings map[string]any `toml:"settings" yaml:"settings"`
}

// LogConfig configures the host logger.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" yaml:"format" validate:"oneof=json console"`
	// Output is stderr, stdout, or a file path.
	Output string `toml:"output" yaml:"output" validate:"required"`
}

// RouterConfig configures feature request fan-out.
type RouterConfig struct {
	ProviderTimeout time.Duration `toml:"providerTimeout" yaml:"providerTimeout" validate:"gt=0"`
	MaxConcurrency  int           `toml:"maxConcurrency" yaml:"maxConcurrency" validate:"min=1"`
}

// SessionConfig configures extension sessions.
type SessionConfig struct {
	InitializeTimeout time.Duration `toml:"initializeTimeout" yaml:"initializeTimeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `toml:"shutdownTimeout" yaml:"shutdownTimeout" validate:"gt=0"`
	// KillDelay is how long an extension process may take to exit after
	// its stream closes.
	KillDelay time.Duration `toml:"killDelay" yaml:"killDelay" validate:"gte=0"`
	// LuaCallTimeout bounds one call into a Lua extension.
	LuaCallTimeout time.Duration `toml:"luaCallTimeout" yaml:"luaCallTimeout" validate:"gt=0"`
}

// ExtensionsConfig lists the extensions to load.
type ExtensionsConfig struct {
	Manifests        []string `toml:"manifests" yaml:"manifests" validate:"dive,required"`
	StartConcurrency int      `toml:"startConcurrency" yaml:"startConcurrency" validate:"min=1"`
}

// WorkspaceConfig describes the workspace.
type WorkspaceConfig struct {
	Folders    []string      `toml:"folders" yaml:"folders" validate:"dive,required"`
	Watch      []string      `toml:"watch" yaml:"watch"`
	WatchDelay time.Duration `toml:"watchDelay" yaml:"watchDelay" validate:"gte=0"`
}

// HTTPConfig configures the debug and attach endpoint. It is disabled when
// Addr is empty.
type HTTPConfig struct {
	Addr string `toml:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// TelemetryConfig configures tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool    `toml:"enabled" yaml:"enabled"`
	Endpoint    string  `toml:"endpoint" yaml:"endpoint" validate:"omitempty,hostname_port"`
	Insecure    bool    `toml:"insecure" yaml:"insecure"`
	ServiceName string  `toml:"serviceName" yaml:"serviceName" validate:"required"`
	SampleRatio float64 `toml:"sampleRatio" yaml:"sampleRatio" validate:"gte=0,lte=1"`
}

// MessagesConfig limits window/logMessage and telemetry/event traffic per
// extension.
type MessagesConfig struct {
	Rate  float64 `toml:"rate" yaml:"rate" validate:"gt=0"`
	Burst int     `toml:"burst" yaml:"burst" validate:"min=1"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Router: RouterConfig{
			ProviderTimeout: 5 * time.Second,
			MaxConcurrency:  8,
		},
		Session: SessionConfig{
			InitializeTimeout: 10 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			KillDelay:         2 * time.Second,
			LuaCallTimeout:    time.Second,
		},
		Extensions: ExtensionsConfig{
			StartConcurrency: 8,
		},
		Workspace: WorkspaceConfig{
			WatchDelay: 100 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "exthost",
			SampleRatio: 1,
		},
		Messages: MessagesConfig{
			Rate:  50,
			Burst: 100,
		},
		Settings: map[string]any{},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
