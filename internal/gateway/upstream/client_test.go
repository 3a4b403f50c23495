package upstream_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/chatgate/internal/gateway/upstream"
	"github.com/stretchr/testify/require"
)

func TestCompleteExtractsUsage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"hi"}}],"usage":{"prompt_tokens":10,"completion_tokens":140,"total_tokens":150}}`)
	}))
	defer srv.Close()

	client := upstream.NewClient(srv.URL, "sk-test")
	res, err := client.Complete(context.Background(), []byte(`{"model":"test"}`))
	require.NoError(t, err)
	require.NotNil(t, res.Usage)
	require.Equal(t, int64(150), res.Usage.TotalTokens)
	require.Contains(t, string(res.Body), `"cmpl-1"`)
}

func TestCompleteWithoutUsageBlock(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-2","choices":[]}`)
	}))
	defer srv.Close()

	client := upstream.NewClient(srv.URL, "")
	res, err := client.Complete(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	require.Nil(t, res.Usage)
}

func TestCompleteNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := upstream.NewClient(srv.URL, "")
	_, err := client.Complete(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, upstream.ErrUpstreamStatus)
	require.Contains(t, err.Error(), "model overloaded")
}

func TestStreamCapturesUsageAndDone(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2,\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := upstream.NewClient(srv.URL, "")
	stream, err := client.Stream(context.Background(), []byte(`{"stream":true}`))
	require.NoError(t, err)
	defer stream.Close()

	var lines int
	for {
		_, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines++
	}

	require.True(t, stream.Completed())
	require.NotNil(t, stream.Usage())
	require.Equal(t, int64(7), stream.Usage().TotalTokens)
	require.Greater(t, stream.RelayedBytes(), int64(0))
}

func TestStreamWithoutUsage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := upstream.NewClient(srv.URL, "")
	stream, err := client.Stream(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	defer stream.Close()

	for {
		if _, err := stream.Next(); err == io.EOF {
			break
		}
	}

	require.Nil(t, stream.Usage())
	require.True(t, stream.Completed())
}

func TestStreamCancellation(t *testing.T) {
	t.Parallel()

	blockForever := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[]}\n\n")
		w.(http.Flusher).Flush()
		<-blockForever
	}))
	defer srv.Close()
	defer close(blockForever)

	ctx, cancel := context.WithCancel(context.Background())
	client := upstream.NewClient(srv.URL, "")
	stream, err := client.Stream(ctx, []byte(`{}`))
	require.NoError(t, err)
	defer stream.Close()

	// First event arrives, then we hang up mid-stream.
	_, err = stream.Next()
	require.NoError(t, err)

	cancel()
	for {
		if _, err = stream.Next(); err != nil {
			break
		}
	}
	require.Error(t, err)
	require.False(t, stream.Completed())
}
