package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateRules(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{
			name: "empty is healthy",
			subs: nil,
			want: "healthy",
		},
		{
			name: "all healthy",
			subs: []Status{NewHealthy("store", ""), NewHealthy("engine", "")},
			want: "healthy",
		},
		{
			name: "one degraded",
			subs: []Status{NewHealthy("store", ""), NewDegraded("engine", "slow")},
			want: "degraded",
		},
		{
			name: "unhealthy wins over degraded",
			subs: []Status{NewDegraded("store", ""), NewUnhealthy("engine", "down")},
			want: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("botapi", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestMonitorUpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("store", "connected")
	m.UpdateUnhealthy("engine", "timeout")

	status, ok := m.Get("store")
	require.True(t, ok)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "store", status.Component)

	_, ok = m.Get("missing")
	assert.False(t, ok)

	all := m.GetAll()
	assert.Len(t, all, 2)
}

func TestMonitorHandler(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("store", "ok")

	rec := httptest.NewRecorder()
	m.Handler("botapi")(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "botapi", status.Component)
	assert.True(t, status.Healthy)

	// Flip to unhealthy
	m.UpdateUnhealthy("store", "lost connection")
	rec = httptest.NewRecorder()
	m.Handler("botapi")(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
