package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompleteSendsPromptAndOptions(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"done","toolsUsed":[{"name":"search"},{"name":"fetch"}]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, srv.Client())
	resp, err := client.Complete(context.Background(), Request{
		Prompt:       "summarise the news",
		SystemPrompt: "be brief",
		MaxTurns:     4,
	})
	require.NoError(t, err)
	require.Equal(t, 2, resp.ToolsUsed)
	require.JSONEq(t, `{"result":"done","toolsUsed":[{"name":"search"},{"name":"fetch"}]}`, string(resp.Raw))

	require.Equal(t, "summarise the news", got["prompt"])
	require.Equal(t, "be brief", got["systemPrompt"])
	require.Equal(t, map[string]any{"maxTurns": float64(4)}, got["options"])
}

func TestCompleteOmitsEmptySystemPrompt(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(srv.URL, srv.Client()).Complete(context.Background(), Request{Prompt: "p", MaxTurns: 10})
	require.NoError(t, err)
	require.Zero(t, resp.ToolsUsed)
	require.NotContains(t, got, "systemPrompt")
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, srv.Client()).Complete(context.Background(), Request{Prompt: "p"})
	var callErr *CallError
	require.True(t, errors.As(err, &callErr))
	require.Equal(t, http.StatusBadGateway, callErr.StatusCode)
	require.Equal(t, "Bad Gateway", callErr.Status)
	require.Equal(t, "upstream exploded", callErr.Body)
	require.Equal(t, "completion service returned 502: Bad Gateway", err.Error())
}

func TestCompleteRejectsNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, srv.Client()).Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
}

func TestCompleteHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewHTTPClient(srv.URL, srv.Client()).Complete(ctx, Request{Prompt: "p"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}
