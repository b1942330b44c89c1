package cloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearsay-app/hearsay/internal/providers"
	"github.com/hearsay-app/hearsay/internal/voices"
)

func testClient(baseURL string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.RequestsPerMinute = 100000
	return New(cfg, log.New(io.Discard))
}

func testRequest() providers.Request {
	return providers.Request{
		Text:  "hello world",
		Voice: voices.Voice{ID: "aria", Provider: voices.Cloud, Language: "en-US"},
		Rate:  1.25,
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	var gotBody synthesizeRequest
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/v1/synthesize", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		resp := synthesizeResponse{AudioURL: server.URL + "/audio/abc", CostUnits: 2.5, Cached: true}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	mux.HandleFunc("/audio/abc", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pcm-bytes"))
	})

	c := testClient(server.URL)
	result, err := c.Synthesize(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "hello world", gotBody.Text)
	assert.Equal(t, "aria", gotBody.VoiceID)
	assert.InDelta(t, 1.25, gotBody.Rate, 0.001)

	assert.Equal(t, []byte("pcm-bytes"), result.PCM)
	assert.Nil(t, result.Live)
	assert.InDelta(t, 2.5, result.CostUnits, 0.001)
	assert.True(t, result.ServerCached)
}

func TestSynthesizeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // refuse connections

	c := testClient(server.URL)
	_, err := c.Synthesize(context.Background(), testRequest())
	assert.ErrorIs(t, err, providers.ErrUnreachable)
}

func TestSynthesizeServerErrorIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Synthesize(context.Background(), testRequest())
	assert.ErrorIs(t, err, providers.ErrUnreachable)
}

func TestSynthesizeVoiceRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "unknown voice", Code: "voice_not_found"})
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Synthesize(context.Background(), testRequest())
	assert.ErrorIs(t, err, providers.ErrVoiceRejected)
}

func TestSynthesizeRequestRejectedNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: "text too large", Code: "request_invalid"})
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Synthesize(context.Background(), testRequest())
	assert.ErrorIs(t, err, providers.ErrRequestRejected)
	assert.Equal(t, int32(1), calls.Load(), "rejected requests must not be retried")
}

func TestSynthesizeOversizedTextRejectedLocally(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.MaxTextLen = 10
	c := New(cfg, log.New(io.Discard))

	req := testRequest()
	req.Text = "this text is well over ten bytes"
	_, err := c.Synthesize(context.Background(), req)
	assert.ErrorIs(t, err, providers.ErrRequestRejected)
	assert.Zero(t, calls.Load(), "oversized text must not reach the service")
}

func TestSynthesizeCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(server.URL)
	_, err := c.Synthesize(ctx, testRequest())
	assert.ErrorIs(t, err, providers.ErrCanceled)
}

func TestVoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/voices", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]voiceInfo{
			{ID: "aria", Name: "Aria", Language: "en-US"},
			{ID: "luna", Name: "Luna", Language: "fr-FR"},
		})
	}))
	defer server.Close()

	c := testClient(server.URL)
	vs, err := c.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, voices.Cloud, vs[0].Provider)
	assert.Equal(t, "fr-FR", vs[1].Language)
}

func TestAuthorizationHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode([]voiceInfo{})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = "secret"
	c := New(cfg, log.New(io.Discard))

	_, err := c.Voices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
}
