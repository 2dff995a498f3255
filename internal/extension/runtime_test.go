package extension

import (
	"context"
	"testing"

	"github.com/dshills/exthost/internal/jsonrpc"
	"github.com/dshills/exthost/internal/protocol"
	"github.com/dshills/exthost/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAttached(t *testing.T) {
	hostEnd, extEnd := jsonrpc.Pipe()
	srv := server.New(protocol.Info{Name: "attached"}, server.WithLogger(zaptest.NewLogger(t)))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, extEnd)

	rt := NewAttached(hostEnd)
	assert.Equal(t, "attached", rt.Kind())
	c := New("attached", rt, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, c.Start(context.Background()))
	neg, err := c.Initialize(context.Background(), protocol.InitializeParams{Capabilities: protocol.DefaultClientCapabilities()})
	require.NoError(t, err)
	require.NotNil(t, neg.ServerInfo)
	assert.Equal(t, "attached", neg.ServerInfo.Name)

	_, err = rt.Open(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	require.NoError(t, c.Shutdown(context.Background()))
	select {
	case <-rt.Closed():
	default:
		t.Fatal("runtime not closed after shutdown")
	}
	assert.NoError(t, rt.Close())
}

func TestInProcess_SingleUse(t *testing.T) {
	rt := NewInProcess(server.New(protocol.Info{Name: "once"}))
	assert.Equal(t, "inprocess", rt.Kind())
	assert.NoError(t, rt.Close())

	_, err := rt.Open(context.Background())
	require.NoError(t, err)
	_, err = rt.Open(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.NoError(t, rt.Close())
	assert.NoError(t, rt.Close())
}
