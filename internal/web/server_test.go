package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/beatchaos/internal/beat"
	"github.com/guidoenr/beatchaos/internal/pipeline"
)

func newTestServer(t *testing.T, reg prometheus.Gatherer) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(reg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return s, ts
}

func TestStatusTracksBatch(t *testing.T) {
	s, ts := newTestServer(t, nil)

	s.Begin(3, pipeline.TrackFused)
	s.Publish(pipeline.Result{RecordID: "100", Rows: make([]pipeline.Row, 4)})
	s.Publish(pipeline.Result{RecordID: "101", Failure: pipeline.FailureDenoise, Err: errors.New("bad rate")})

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "fused", st.Track)
	assert.True(t, st.Running)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Processed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 4, st.Rows)
	assert.Equal(t, map[string]int{"denoise": 1}, st.Failures)

	s.Finish()
	st = s.Status()
	assert.False(t, st.Running)
	require.NotNil(t, st.Finished)
}

func TestStatusRejectsPost(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/status", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestWebSocketReceivesEvents(t *testing.T) {
	s, ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Begin(1, pipeline.TrackRR)
	s.Publish(pipeline.Result{
		RecordID: "207",
		Rows:     make([]pipeline.Row, 2),
		Rejected: map[beat.Reason]int{beat.RejectMargin: 10},
		Elapsed:  1500 * time.Microsecond,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "207", ev.Record)
	assert.Equal(t, 2, ev.Rows)
	assert.Empty(t, ev.Failure)
	assert.Equal(t, map[string]int{"margin": 10}, ev.Rejected)
	assert.InDelta(t, 1.5, ev.ElapsedMS, 1e-9)
	assert.Equal(t, 1, ev.Processed)
	assert.Equal(t, 1, ev.Total)
}

func TestWebSocketClientRemovedOnClose(t *testing.T) {
	s, ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return s.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)
	metrics.Rows.Add(3)
	_, ts := newTestServer(t, reg)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "beatchaos_rows_total 3")
}
