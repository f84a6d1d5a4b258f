package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelf-sync/pkg/cache"
)

type countingTranslator struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingTranslator) Translate(_ context.Context, text string) (string, error) {
	c.calls.Add(1)
	if c.fail {
		return "", errors.New("service down")
	}
	return "en:" + text, nil
}

func TestCached(t *testing.T) {
	ctx := context.Background()
	next := &countingTranslator{}
	store := cache.NewMemory(0)
	c := NewCached(next, store, "nl", "en")

	got, err := c.Translate(ctx, " Halfvolle melk ")
	require.NoError(t, err)
	assert.Equal(t, "en:Halfvolle melk", got)

	got, err = c.Translate(ctx, "Halfvolle melk")
	require.NoError(t, err)
	assert.Equal(t, "en:Halfvolle melk", got)
	assert.Equal(t, int32(1), next.calls.Load())

	cached, err := store.Get(ctx, "translate:nl:en", "Halfvolle melk")
	require.NoError(t, err)
	assert.Equal(t, "en:Halfvolle melk", cached)

	got, err = c.Translate(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCached_FailureNotStored(t *testing.T) {
	ctx := context.Background()
	next := &countingTranslator{fail: true}
	store := cache.NewMemory(0)

	_, err := NewCached(next, store, "nl", "en").Translate(ctx, "Kaas")
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		var req translateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nl", req.Source)
		assert.Equal(t, "en", req.Target)

		if req.Q == "leeg" {
			json.NewEncoder(w).Encode(translateResponse{})
			return
		}
		json.NewEncoder(w).Encode(translateResponse{TranslatedText: "Cheese"})
	}))
	defer server.Close()

	h := NewHTTP(server.URL+"/", "", "nl", "en", 100)

	got, err := h.Translate(context.Background(), "Kaas")
	require.NoError(t, err)
	assert.Equal(t, "Cheese", got)

	_, err = h.Translate(context.Background(), "leeg")
	assert.Error(t, err)
}
