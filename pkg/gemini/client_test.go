package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maclay/research-assistant/internal/resilience"
)

const okBody = `{"candidates":[{"content":{"parts":[{"text":"generated"}]}}]}`

func TestGenerateContent_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req GenerateContentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)
		require.NotNil(t, req.GenerationConfig)
		assert.InDelta(t, 0.7, req.GenerationConfig.Temperature, 0.001)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.GenerateContent(context.Background(), GenerateContentRequest{
		Contents:         []Content{{Parts: []Part{{Text: "hello"}}}},
		GenerationConfig: &GenerationConfig{Temperature: 0.7},
	})
	require.NoError(t, err)
	assert.Equal(t, "generated", resp.Text())
}

func TestGenerateText_FlattensFirstCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"part one "},{"text":"part two"}]}},{"content":{"parts":[{"text":"ignored"}]}}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	text, err := client.GenerateText(context.Background(), "prompt", 0.5)
	require.NoError(t, err)
	assert.Equal(t, "part one part two", text)
}

func TestGenerateText_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.GenerateText(context.Background(), "prompt", 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestGenerateContent_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.GenerateContent(context.Background(), GenerateContentRequest{
		Contents: []Content{{Parts: []Part{{Text: "hi"}}}},
	})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "quota exceeded")
}

func TestGenerateContent_TransientStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))

		client := NewClient("test-key", WithBaseURL(srv.URL))
		_, err := client.GenerateContent(context.Background(), GenerateContentRequest{
			Contents: []Content{{Parts: []Part{{Text: "hi"}}}},
		})
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, tc.transient, resilience.IsTransient(err), "status %d", tc.status)

		// The underlying status error stays reachable through the wrap.
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr), "status %d", tc.status)
		assert.Equal(t, tc.status, statusErr.StatusCode)
	}
}

func TestWithModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithModel("gemini-2.5-pro"))
	_, err := client.GenerateContent(context.Background(), GenerateContentRequest{
		Contents: []Content{{Parts: []Part{{Text: "hi"}}}},
	})
	require.NoError(t, err)
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GenerateContent(ctx, GenerateContentRequest{
		Contents: []Content{{Parts: []Part{{Text: "hi"}}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	custom := &http.Client{}
	c := NewClient("test-key", WithHTTPClient(custom))
	hc := c.(*httpClient)
	assert.Equal(t, custom, hc.http)
}
