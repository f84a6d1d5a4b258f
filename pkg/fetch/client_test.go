package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	c := NewClient("TEST", 1000, 10)
	c.Backoff = time.Millisecond
	return c
}

func TestClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "shelf-sync/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"name":"Kaas"}`))
	}))
	defer server.Close()

	var out struct {
		Name string `json:"name"`
	}
	err := testClient().GetJSON(context.Background(), server.URL, http.Header{"Authorization": {"Bearer abc"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Kaas", out.Name)
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer server.Close()

	var out map[string]string
	err := testClient().PostJSON(context.Background(), server.URL, nil, map[string]string{"q": "melk"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "melk", out["echo"])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var out map[string]any
	require.NoError(t, testClient().GetJSON(context.Background(), server.URL, nil, &out))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{name: "not found", status: http.StatusNotFound, check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNotFound) }},
		{name: "no content", status: http.StatusNoContent, check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNotFound) }},
		{name: "bad request", status: http.StatusBadRequest, check: func(t *testing.T, err error) {
			var status *StatusError
			require.ErrorAs(t, err, &status)
			assert.Equal(t, http.StatusBadRequest, status.Status)
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			err := testClient().GetJSON(context.Background(), server.URL, nil, nil)
			tc.check(t, err)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}
