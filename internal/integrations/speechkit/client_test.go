package speechkit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(" ", "folder")
	require.Error(t, err)
}

func TestRecognize_SendsAudioAndParams(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Api-Key key-1", r.Header.Get("Authorization"))
		require.Equal(t, "folder-1", r.URL.Query().Get("folderId"))
		require.Equal(t, "en-US", r.URL.Query().Get("lang"))
		require.Equal(t, "oggopus", r.URL.Query().Get("format"))
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"hello world"}`))
	}))
	defer server.Close()

	c, err := NewClient("key-1", "folder-1", WithBaseURL(server.URL), WithLanguage("en-US"))
	require.NoError(t, err)

	text, err := c.Recognize(context.Background(), []byte("OggS-audio"))
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.Equal(t, []byte("OggS-audio"), gotBody)
}

func TestRecognize_EmptyResultIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":""}`))
	}))
	defer server.Close()

	c, err := NewClient("key", "", WithBaseURL(server.URL))
	require.NoError(t, err)

	text, err := c.Recognize(context.Background(), []byte("a"))
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestRecognize_ErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error_code":"BAD_REQUEST","error_message":"audio is too long"}`))
	}))
	defer server.Close()

	c, err := NewClient("key", "folder", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = c.Recognize(context.Background(), []byte("a"))
	require.ErrorContains(t, err, "audio is too long")
}

func TestRecognize_MissingResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := NewClient("key", "folder", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = c.Recognize(context.Background(), []byte("a"))
	require.ErrorContains(t, err, "no result")
}

func TestRecognize_Non2xxReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"unauthorized"}`))
	}))
	defer server.Close()

	c, err := NewClient("key", "folder", WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = c.Recognize(context.Background(), []byte("a"))
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.HTTPStatusCode())
}

func TestRecognize_EmptyAudio(t *testing.T) {
	c, err := NewClient("key", "folder")
	require.NoError(t, err)

	_, err = c.Recognize(context.Background(), nil)
	require.Error(t, err)
}
