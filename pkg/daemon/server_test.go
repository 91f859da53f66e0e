package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/tune/poller"
	"github.com/fleettune/fleettune/pkg/tune/types"
)

// stubProvider returns a fixed running status.
type stubProvider struct{}

func (stubProvider) TuningStatus(ctx context.Context) (types.RunStatus, error) {
	return types.RunStatus{
		Running:           true,
		Phase:             "Precision sweep",
		ReportedCompleted: 10,
		Config: &types.SweepConfig{
			VoltageStart: 1100, VoltageStop: 1200, VoltageStep: 20,
			FrequencyStart: 400, FrequencyStop: 700, FrequencyStep: 25,
			CyclesPerTest: 1,
		},
	}, nil
}

func (stubProvider) StopRun(ctx context.Context) error { return nil }

func (stubProvider) Devices(ctx context.Context) ([]types.Device, error) { return nil, nil }

func (stubProvider) DeviceStatus(ctx context.Context, name string) (types.Telemetry, error) {
	return types.Telemetry{}, nil
}

func (stubProvider) PSUs(ctx context.Context) ([]types.PSU, error) { return nil, nil }

func newTestServer(t *testing.T) (*Server, *poller.Poller, *broadcaster.Broadcaster, *httptest.Server) {
	t.Helper()

	bc := broadcaster.New()
	p := poller.New(stubProvider{}, nil, bc, poller.Options{})
	srv := NewServer(p, bc, "127.0.0.1:0")

	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(func() {
		ts.Close()
		bc.Close()
	})
	return srv, p, bc, ts
}

func TestHandleStatus(t *testing.T) {
	_, p, _, ts := newTestServer(t)
	p.Tick(context.Background())

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap types.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.True(t, snap.Running)
	assert.Equal(t, 78, snap.Progress.Planned)
}

func TestHandleHealthz(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWebsocketStream(t *testing.T) {
	_, p, bc, ts := newTestServer(t)
	p.Tick(context.Background())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	// First message is the latest snapshot.
	var first broadcaster.Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, broadcaster.KindSnapshot, first.Kind)
	require.NotNil(t, first.Snapshot)
	assert.True(t, first.Snapshot.Running)

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		return bc.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	bc.PublishWarning(types.WarningEvent{ID: "psu1-load-danger", Level: types.LevelDanger})

	var second broadcaster.Message
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, broadcaster.KindWarning, second.Kind)
	require.NotNil(t, second.Warning)
	assert.Equal(t, "psu1-load-danger", second.Warning.ID)
}

func TestWarningLifecycle(t *testing.T) {
	_, p, _, ts := newTestServer(t)
	p.Alerter().Enqueue(types.WarningEvent{
		ID: "psu1-load-warning", Title: "PSU near limit", Level: types.LevelWarning,
	})

	resp, err := http.Post(ts.URL+"/warnings/next", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ev types.WarningEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ev))
	assert.Equal(t, "psu1-load-warning", ev.ID)

	// The active slot is occupied; the same event comes back unchanged.
	resp2, err := http.Post(ts.URL+"/warnings/next", "", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	var again types.WarningEvent
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&again))
	assert.Equal(t, ev.ID, again.ID)

	resp3, err := http.Post(ts.URL+"/warnings/dismiss", "", nil)
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp3.StatusCode)

	_, active := p.Alerter().Active()
	assert.False(t, active)
}

func TestShutdown(t *testing.T) {
	bc := broadcaster.New()
	defer bc.Close()
	p := poller.New(stubProvider{}, nil, bc, poller.Options{})
	srv := NewServer(p, bc, "127.0.0.1:0")

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()

	// Give the listener a moment, then shut down.
	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
