package lua

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/server"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// DefaultCallTimeout bounds a single call into Lua.
const DefaultCallTimeout = 5 * time.Second

// ErrNoScript is returned when neither Path nor Source is set.
var ErrNoScript = errors.New("lua: no script")

// Runtime runs one Lua extension in the host process.
type Runtime struct {
	// Name is reported as the extension name; it defaults to the script
	// file name.
	Name string

	// Path is the script file. Source, when set, is used instead.
	Path   string
	Source string

	CallTimeout time.Duration
	Logger      *zap.Logger

	mu     sync.Mutex
	srv    *server.Server
	exec   *executor
	L      *lua.LState
	cancel context.CancelFunc
	served chan struct{}
}

// Kind implements extension.Runtime.
func (r *Runtime) Kind() string { return "lua" }

// Server returns the server the script registered on. It is nil before
// Open.
func (r *Runtime) Server() *server.Server {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.srv
}

func (r *Runtime) name() string {
	if r.Name != "" {
		return r.Name
	}
	if r.Path != "" {
		return strings.TrimSuffix(filepath.Base(r.Path), filepath.Ext(r.Path))
	}
	return "lua"
}

func (r *Runtime) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runtime) timeout() time.Duration {
	if r.CallTimeout > 0 {
		return r.CallTimeout
	}
	return DefaultCallTimeout
}

// Open loads the script and starts serving it.
func (r *Runtime) Open(ctx context.Context) (jsonrpc.Stream, error) {
	if r.Path == "" && r.Source == "" {
		return nil, ErrNoScript
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.srv != nil {
		return nil, errors.New("lua: already open")
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	exec := newExecutor(L, 0)
	go exec.run(runCtx)

	srv := server.New(protocol.Info{Name: r.name()}, server.WithLogger(r.logger()))
	m := &module{name: r.name(), srv: srv, exec: exec, timeout: r.timeout(), logger: r.logger()}

	loadCtx, loadCancel := context.WithTimeout(ctx, r.timeout())
	defer loadCancel()
	err := exec.execute(loadCtx, func(L *lua.LState) error {
		L.SetGlobal("ext", m.table(L))
		if r.Source != "" {
			return L.DoString(r.Source)
		}
		return L.DoFile(r.Path)
	})
	if err != nil {
		cancel()
		exec.close()
		L.Close()
		return nil, fmt.Errorf("load %s: %w", r.name(), err)
	}

	host, ext := jsonrpc.Pipe()
	served := make(chan struct{})
	go func() {
		defer close(served)
		if err := srv.Serve(runCtx, ext); err != nil && !errors.Is(err, context.Canceled) {
			r.logger().Warn("lua extension stopped", zap.Error(err))
		}
	}()

	r.srv, r.exec, r.L, r.cancel, r.served = srv, exec, L, cancel, served
	return host, nil
}

// Close stops serving and releases the Lua state.
func (r *Runtime) Close() error {
	r.mu.Lock()
	cancel, exec, L, served := r.cancel, r.exec, r.L, r.served
	r.cancel = nil
	r.srv, r.exec, r.L = nil, nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-served
	exec.close()
	L.Close()
	return nil
}

// openSafeLibraries opens the libraries that cannot reach the file system
// or the process.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}
