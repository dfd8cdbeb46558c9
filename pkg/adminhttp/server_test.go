package adminhttp

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/bloomd/pkg/auth"
	"github.com/dd0wney/bloomd/pkg/logging"
	"github.com/dd0wney/bloomd/pkg/manager"
	"github.com/dd0wney/bloomd/pkg/metrics"
	"github.com/dd0wney/bloomd/pkg/workerpool"
)

const testSecret = "this-is-a-test-secret-of-32-bytes!!"

// testServer starts a Server on an OS-assigned loopback port and returns it
// alongside the Manager it wraps, already listening.
func testServer(t *testing.T) (*Server, *manager.Manager) {
	t.Helper()
	pool, err := workerpool.NewWorkerPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	defaults := manager.Defaults{
		InitialCapacity:      4,
		DefaultProbability:   0.1,
		ScaleSize:            2,
		ProbabilityReduction: 0.9,
	}
	mgr := manager.New(t.TempDir(), defaults, pool, logging.NewNopLogger(), metrics.NewRegistry())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv, err := New(addr, testSecret, mgr, metrics.NewRegistry(), logging.NewNopLogger())
	require.NoError(t, err)

	go func() {
		_ = srv.ListenAndServe()
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return srv, mgr
}

func TestNewRejectsShortSecret(t *testing.T) {
	pool, err := workerpool.NewWorkerPool(1)
	require.NoError(t, err)
	defer pool.Close()

	mgr := manager.New(t.TempDir(), manager.Defaults{InitialCapacity: 4, DefaultProbability: 0.1, ScaleSize: 2, ProbabilityReduction: 0.9}, pool, logging.NewNopLogger(), metrics.NewRegistry())
	_, err = New("127.0.0.1:0", "too-short", mgr, metrics.NewRegistry(), logging.NewNopLogger())
	require.ErrorIs(t, err, auth.ErrShortSecret)
}

func TestHealthzAndFilterRoutesRoundTrip(t *testing.T) {
	srv, mgr := testServer(t)
	require.NoError(t, mgr.Create("events", manager.Overrides{}))
	_, err := mgr.SetKeys("events", [][]byte{[]byte("a")})
	require.NoError(t, err)

	base := "http://" + srv.httpServer.Addr

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(base + "/filters/events")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info filterInfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	require.Equal(t, "events", info.Name)
	require.Equal(t, uint64(1), info.Size)

	// Mutating route requires a bearer token.
	req, err := http.NewRequest(http.MethodDelete, base+"/filters/events", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	jwtManager, err := auth.NewJWTManager(testSecret, time.Hour, time.Hour)
	require.NoError(t, err)
	token, err := jwtManager.GenerateToken("admin-1", "admin", auth.RoleAdmin)
	require.NoError(t, err)

	req, err = http.NewRequest(http.MethodDelete, base+"/filters/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	resp, err = http.Get(base + "/filters/events")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
