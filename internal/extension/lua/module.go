package lua

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/server"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// module implements the ext table exposed to scripts.
type module struct {
	name    string
	srv     *server.Server
	exec    *executor
	timeout time.Duration
	logger  *zap.Logger
}

func (m *module) table(L *lua.LState) *lua.LTable {
	t := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"on":                  m.on,
		"notification":        m.notification,
		"command":             m.command,
		"document":            m.document,
		"log":                 m.log,
		"show":                m.show,
		"publish_diagnostics": m.publishDiagnostics,
		"telemetry":           m.telemetry,
	})
	t.RawSetString("name", lua.LString(m.name))
	return t
}

// call runs fn with args on the executor and converts its first result.
func (m *module) call(ctx context.Context, fn *lua.LFunction, args ...any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	var out any
	err := m.exec.execute(ctx, func(L *lua.LState) error {
		L.Push(fn)
		for _, a := range args {
			L.Push(toLua(L, a))
		}
		if err := L.PCall(len(args), 1, nil); err != nil {
			return err
		}
		out = toGo(L.Get(-1))
		L.Pop(1)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var apiErr *lua.ApiError
		if errors.As(err, &apiErr) {
			return nil, protocol.Errorf(protocol.CodeInternalError, "%s", apiErr.Object.String())
		}
		return nil, err
	}
	return out, nil
}

// on(method, fn)
func (m *module) on(L *lua.LState) int {
	method := L.CheckString(1)
	fn := L.CheckFunction(2)
	server.Handle(m.srv, method, func(ctx context.Context, params any) (any, error) {
		return m.call(ctx, fn, params)
	})
	return 0
}

// notification(method, fn)
func (m *module) notification(L *lua.LState) int {
	method := L.CheckString(1)
	fn := L.CheckFunction(2)
	server.OnNotification(m.srv, method, func(ctx context.Context, params any) error {
		_, err := m.call(ctx, fn, params)
		return err
	})
	return 0
}

// command(id, fn)
func (m *module) command(L *lua.LState) int {
	id := L.CheckString(1)
	fn := L.CheckFunction(2)
	m.srv.Command(id, func(ctx context.Context, args []any) (any, error) {
		if args == nil {
			args = []any{}
		}
		return m.call(ctx, fn, args)
	})
	return 0
}

// document(uri) returns {uri, languageId, version, text} or nil.
func (m *module) document(L *lua.LState) int {
	uri := protocol.DocumentURI(L.CheckString(1))
	doc, ok := m.srv.Document(uri)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	t := L.NewTable()
	t.RawSetString("uri", lua.LString(doc.URI))
	t.RawSetString("languageId", lua.LString(doc.LanguageID))
	t.RawSetString("version", lua.LNumber(doc.Version))
	t.RawSetString("text", lua.LString(doc.Text))
	L.Push(t)
	return 1
}

func messageType(L *lua.LState, n int) protocol.MessageType {
	return protocol.MessageType(L.OptInt(n, int(protocol.MessageInfo)))
}

// client returns the host client and a context for calls made while a
// handler runs.
func (m *module) client(L *lua.LState) (*server.Client, context.Context) {
	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return m.srv.Client(), ctx
}

// log(message [, type])
func (m *module) log(L *lua.LState) int {
	msg := L.CheckString(1)
	c, ctx := m.client(L)
	if c == nil {
		m.logger.Info(msg)
		return 0
	}
	if err := c.LogMessage(ctx, messageType(L, 2), "%s", msg); err != nil {
		L.RaiseError("log: %v", err)
	}
	return 0
}

// show(message [, type])
func (m *module) show(L *lua.LState) int {
	msg := L.CheckString(1)
	c, ctx := m.client(L)
	if c == nil {
		L.RaiseError("show: not connected")
		return 0
	}
	if err := c.ShowMessage(ctx, messageType(L, 2), msg); err != nil {
		L.RaiseError("show: %v", err)
	}
	return 0
}

// publish_diagnostics(uri, {{range=..., severity=..., message=...}, ...})
func (m *module) publishDiagnostics(L *lua.LState) int {
	uri := protocol.DocumentURI(L.CheckString(1))
	list := L.OptTable(2, L.NewTable())
	c, ctx := m.client(L)
	if c == nil {
		L.RaiseError("publish_diagnostics: not connected")
		return 0
	}
	var diags []protocol.Diagnostic
	if err := decodeInto(toGo(list), &diags); err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	if err := c.PublishDiagnostics(ctx, protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: diags}); err != nil {
		L.RaiseError("publish_diagnostics: %v", err)
	}
	return 0
}

// telemetry(name [, properties])
func (m *module) telemetry(L *lua.LState) int {
	name := L.CheckString(1)
	props, _ := toGo(L.OptTable(2, L.NewTable())).(map[string]any)
	c, ctx := m.client(L)
	if c == nil {
		return 0
	}
	if err := c.Telemetry(ctx, name, props); err != nil {
		L.RaiseError("telemetry: %v", err)
	}
	return 0
}

// decodeInto moves converted Lua data into a typed value. An empty table
// decodes as nothing.
func decodeInto(v any, out any) error {
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
