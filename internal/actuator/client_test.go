package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStateDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/devices/dev-1/state", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"ok","data":{"temperature":22.5}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "secret", 10)
	got, err := c.GetStateDetails(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 22.5, got.Data["temperature"])
}

func TestUpdateStateDetailsSendsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/devices/dev-1/state/ac_power", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ON", body["value"])
		_, _ = w.Write([]byte(`{"status":"accepted"}`))
	}))
	defer srv.Close()

	ack, err := New(srv.URL, "", 10).UpdateStateDetails(context.Background(), "dev-1", "ac_power", map[string]any{"value": "ON"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", ack.Status)
}

func TestTopicStreamDataRange(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/dev-1/topics/temperature/stream", r.URL.Path)
		assert.Equal(t, "2026-03-01T00:00:00Z", r.URL.Query().Get("from"))
		assert.Empty(t, r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(`{"data":[{"timestamp":"2026-03-01T00:05:00Z","value":21}]}`))
	}))
	defer srv.Close()

	samples, err := New(srv.URL, "", 10).GetTopicStreamData(context.Background(), "dev-1", "temperature", Range{From: from})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, from.Add(5*time.Minute), samples[0].Timestamp)
	assert.Equal(t, float64(21), samples[0].Value)
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/devices/dev-1/topics/door/state", r.URL.Path)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", 10).GetTopicStateDetails(context.Background(), "dev-1", "door", Range{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Equal(t, "boom", se.Body)
}

func TestNotConfigured(t *testing.T) {
	c := New("", "", 1)
	assert.False(t, c.Enabled())
	_, err := c.GetStateDetails(context.Background(), "dev-1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
