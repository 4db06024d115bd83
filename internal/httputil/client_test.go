package httputil

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestMockHTTPClient_Routes(t *testing.T) {
	t.Parallel()
	mock := NewMockHTTPClient().
		On(http.MethodGet, "/api/execution/status", http.StatusOK, `{"running":true}`).
		On(http.MethodGet, "/api/execution/status", http.StatusOK, `{"running":false}`).
		On(http.MethodPut, "/api/inputs/x", http.StatusNoContent, "")

	resp, err := mock.Get("http://host/api/execution/status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"running":true}`, body(t, resp))

	req, _ := http.NewRequest(http.MethodPut, "http://host/api/inputs/x", nil)
	resp, err = mock.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The last reply for a route repeats.
	for i := 0; i < 2; i++ {
		resp, err = mock.Get("http://host/api/execution/status")
		require.NoError(t, err)
		assert.JSONEq(t, `{"running":false}`, body(t, resp))
	}

	resp, err = mock.Get("http://host/api/nodes")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body(t, resp), "GET /api/nodes")

	assert.Equal(t, []string{
		"GET /api/execution/status",
		"PUT /api/inputs/x",
		"GET /api/execution/status",
		"GET /api/execution/status",
		"GET /api/nodes",
	}, mock.Paths())
}

func TestMockHTTPClient_Fail(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	mock := NewMockHTTPClient().
		Fail(http.MethodGet, "/api/snapshot", boom).
		On(http.MethodGet, "/api/snapshot", http.StatusOK, "jpeg")

	_, err := mock.Get("http://host/api/snapshot")
	assert.ErrorIs(t, err, boom)

	resp, err := mock.Get("http://host/api/snapshot")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", body(t, resp))
}
