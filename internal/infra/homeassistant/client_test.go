package homeassistant_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callrec/internal/application"
	"callrec/internal/infra/homeassistant"
)

type request struct {
	path string
	body map[string]any
}

func newServer(t *testing.T, status int) (*httptest.Server, func() []request) {
	t.Helper()
	var mu sync.Mutex
	var reqs []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ha-token", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		reqs = append(reqs, request{path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), reqs...)
	}
}

func TestClient_ShowAndDismiss(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK)
	c := homeassistant.NewClient(srv.URL+"/", "ha-token", homeassistant.Options{})
	ctx := context.Background()

	require.NoError(t, c.Show(ctx, application.SessionInfo{
		ID:        "s1",
		Artifact:  "call_recording_1.pcm",
		StartedAt: time.Unix(1700000000, 0),
	}))
	require.NoError(t, c.Dismiss(ctx, "s1"))

	reqs := requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/api/states/"+homeassistant.DefaultEntityID, reqs[0].path)
	assert.Equal(t, "on", reqs[0].body["state"])
	attrs := reqs[0].body["attributes"].(map[string]any)
	assert.Equal(t, "s1", attrs["session_id"])
	assert.Equal(t, "call_recording_1.pcm", attrs["artifact"])
	assert.Equal(t, "off", reqs[1].body["state"])
}

func TestClient_Notify(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK)
	c := homeassistant.NewClient(srv.URL, "ha-token", homeassistant.Options{NotifyService: "notify.mobile_app_phone"})

	require.NoError(t, c.Notify(context.Background(), "Recording saved"))

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/services/notify/mobile_app_phone", reqs[0].path)
	assert.Equal(t, "Recording saved", reqs[0].body["message"])
}

func TestClient_NotifyWithoutServiceIsNoop(t *testing.T) {
	srv, requests := newServer(t, http.StatusOK)
	c := homeassistant.NewClient(srv.URL, "ha-token", homeassistant.Options{})

	require.NoError(t, c.Notify(context.Background(), "ignored"))
	assert.Empty(t, requests())
}

func TestClient_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := homeassistant.NewClient(srv.URL, "bad", homeassistant.Options{})
	err := c.Show(context.Background(), application.SessionInfo{ID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.EqualValues(t, 1, calls.Load())
}
