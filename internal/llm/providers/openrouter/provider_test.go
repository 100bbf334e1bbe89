package openrouter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhe.chen/manifest-compiler/internal/llm"
	"github.com/zhe.chen/manifest-compiler/pkg/types"
)

func TestDisabledWithoutKey(t *testing.T) {
	p, err := NewProvider(types.OpenRouterConfig{})
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())

	_, err = p.Complete(context.Background(), "system", "user")
	assert.ErrorIs(t, err, llm.ErrDisabled)
}

func TestHeaderTransport(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer server.Close()

	transport := &headerTransport{
		Base:    http.DefaultTransport,
		Headers: map[string]string{"X-Title": appTitle},
	}
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, appTitle, got.Get("X-Title"))
	assert.Empty(t, req.Header.Get("X-Title"), "caller's request must not be modified")
}
