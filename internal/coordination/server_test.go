package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	registry := NewRegistry()
	srv := NewServer("127.0.0.1:0", registry)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	require.Eventually(t, func() bool {
		return srv.IsRunning()
	}, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		<-errCh
	})

	return srv
}

func TestServerClientAcquireReleaseLock(t *testing.T) {
	srv := startTestServer(t)

	c1, err := Dial(srv.Addr(), "worker-1")
	require.NoError(t, err)
	defer c1.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c1.AcquireLock(ctx, "db"))
	require.NoError(t, c1.ReleaseLock("db"))
}

func TestServerClientValueSet(t *testing.T) {
	srv := startTestServer(t)
	srv.registry.DefineValueSet("browsers", []string{"ci"}, map[string]string{"browser": "chrome"})

	c, err := Dial(srv.Addr(), "worker-1")
	require.NoError(t, err)
	defer c.Close()

	name, err := c.AcquireValueSet("ci")
	require.NoError(t, err)
	require.Equal(t, "browsers", name)

	v, err := c.GetValueFromSet("browser")
	require.NoError(t, err)
	require.Equal(t, "chrome", v)

	require.NoError(t, c.ReleaseValueSet())
}

func TestDecodeEncodeRequestRoundTrip(t *testing.T) {
	req := Request{Op: OpAcquireLock, CallerID: "worker-1", Args: []string{"db"}}
	line := EncodeRequest(req)
	decoded, err := DecodeRequest(line)
	require.NoError(t, err)
	require.Equal(t, req, decoded)
}

func TestDecodeEncodeResponseRoundTrip(t *testing.T) {
	resp := Response{Status: "OK", Fields: []string{"chrome"}}
	line := EncodeResponse(resp)
	decoded, err := DecodeResponse(line)
	require.NoError(t, err)
	require.Equal(t, resp, decoded)
}
