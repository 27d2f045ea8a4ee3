package ops

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(raw)
}

func TestLiveness(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Deps{}))
	defer srv.Close()

	code, body := getBody(t, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestReadinessHealthy(t *testing.T) {
	deps := Deps{
		Version:  "test",
		Ready:    func() bool { return true },
		Sessions: func() int { return 3 },
	}
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	code, body := getBody(t, srv.URL+"/readyz")
	require.Equal(t, http.StatusOK, code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "healthy", resp.Checks["listener"])
	assert.Equal(t, "3", resp.Checks["sessions"])
	assert.NotEmpty(t, resp.Checks["goroutines"])
	assert.NotEmpty(t, resp.Checks["memory_alloc_mb"])
}

func TestReadinessUnhealthy(t *testing.T) {
	deps := Deps{Ready: func() bool { return false }}
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	code, body := getBody(t, srv.URL+"/readyz")
	require.Equal(t, http.StatusServiceUnavailable, code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.True(t, strings.HasPrefix(resp.Checks["listener"], "unhealthy"))
}

func TestDebugRooms(t *testing.T) {
	deps := Deps{
		Rooms: func() []RoomStatus {
			return []RoomStatus{
				{ID: 0, Name: "alpha", Players: 2, State: "ACTIVE"},
				{ID: 3, Name: "beta", Players: 1, State: "WAITING"},
			}
		},
	}
	srv := httptest.NewServer(NewRouter(deps))
	defer srv.Close()

	code, body := getBody(t, srv.URL+"/debug/rooms")
	require.Equal(t, http.StatusOK, code)

	var resp struct {
		Count int          `json:"count"`
		Rooms []RoomStatus `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Rooms, 2)
	assert.Equal(t, "alpha", resp.Rooms[0].Name)
	assert.Equal(t, "WAITING", resp.Rooms[1].State)
}

func TestMetricsExposed(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Deps{}))
	defer srv.Close()

	code, body := getBody(t, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "checkers_connections_accepted_total")
	assert.Contains(t, body, "checkers_sessions_active")
	assert.Contains(t, body, "checkers_pings_sent_total")
}
