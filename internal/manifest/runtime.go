package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/exthost/internal/extension"
	"github.com/dshills/exthost/internal/extension/lua"
	"go.uber.org/zap"
)

// RuntimeOptions tune the runtimes built from a manifest.
type RuntimeOptions struct {
	Logger       *zap.Logger
	KillDelay    time.Duration
	LuaTimeout   time.Duration
	ExtraEnviron map[string]string
}

// NewRuntime builds the runtime the manifest describes. Relative command,
// script and directory paths are resolved against the manifest directory.
func (m *Manifest) NewRuntime(opts RuntimeOptions) (extension.Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("extension", m.ID))

	switch m.Runtime {
	case RuntimeProcess:
		env := make(map[string]string, len(m.Env)+len(opts.ExtraEnviron))
		for k, v := range opts.ExtraEnviron {
			env[k] = v
		}
		for k, v := range m.Env {
			env[k] = v
		}
		cmd := m.Command
		if strings.ContainsRune(cmd, '/') {
			cmd = m.resolve(cmd)
		}
		dir := m.resolve(m.Dir)
		if dir == "" {
			dir = m.path
		}
		return &extension.Process{
			Command:   cmd,
			Args:      append([]string(nil), m.Args...),
			Env:       env,
			Dir:       dir,
			KillDelay: opts.KillDelay,
			Logger:    logger,
		}, nil
	case RuntimeWebSocket:
		return &extension.WebSocket{URL: m.URL}, nil
	case RuntimeLua:
		return &lua.Runtime{
			Name:        m.ID,
			Path:        m.resolve(m.Script),
			CallTimeout: opts.LuaTimeout,
			Logger:      logger,
		}, nil
	}
	return nil, fmt.Errorf("%w: runtime %q", ErrInvalid, m.Runtime)
}
