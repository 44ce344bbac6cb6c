package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestClient_SendPostsSenderAndMessage(t *testing.T) {
	var got Request
	var method, path, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("content-type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`[{"recipient_id":"user","text":"A","intent":"greet"},{"recipient_id":"user","text":"B"}]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL + "/webhooks/rest/webhook")
	require.NoError(t, err)

	resp, err := c.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "/webhooks/rest/webhook", path)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, Request{Sender: "user", Message: "hello"}, got)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, resp.Replies, 2)
	require.Equal(t, "A", resp.Replies[0].Text)
	require.Equal(t, "greet", resp.Replies[0].Intent)
	require.Equal(t, "B", resp.Replies[1].Text)
	require.Empty(t, resp.Replies[1].Intent)
}

func TestClient_SendUsesConfiguredSender(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithSender("kiosk-7"))
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "kiosk-7", got.Sender)
}

func TestClient_SendEmptyAndNullBodies(t *testing.T) {
	for _, body := range []string{`[]`, `null`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		c, err := NewClient(srv.URL)
		require.NoError(t, err)

		resp, err := c.Send(context.Background(), "hi")
		require.NoError(t, err, body)
		require.Empty(t, resp.Replies, body)
		srv.Close()
	}
}

func TestClient_SendNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`[{"text":"should not be parsed"}]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	resp, err := c.Send(context.Background(), "hi")
	require.Nil(t, resp)
	require.ErrorIs(t, err, ErrUnavailable)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestClient_SendMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"not an array"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_SendConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c, err := NewClient(addr)
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewClient_RejectsInvalidURL(t *testing.T) {
	for _, u := range []string{"", "localhost:5005", "ftp://example.com/hook", "http://"} {
		_, err := NewClient(u)
		require.Error(t, err, u)
	}
}

func TestClient_SendOversizedBodyIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"text":"`))
		_, _ = w.Write(bytes.Repeat([]byte("x"), maxResponseBody))
		_, _ = w.Write([]byte(`"}]`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Contains(t, err.Error(), "exceeds")
}

func TestClient_StatusErrorBodyKeepsWholeRunes(t *testing.T) {
	// 511 ASCII bytes then a 3 byte rune straddling the cut
	body := strings.Repeat("a", maxErrorBody-1) + "€" + strings.Repeat("b", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "hi")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.True(t, utf8.ValidString(statusErr.Body))
	require.Equal(t, strings.Repeat("a", maxErrorBody-1), statusErr.Body)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate([]byte("short"), 10))
	require.Equal(t, "ab", truncate([]byte("ab€"), 3))
	require.Equal(t, "ab€", truncate([]byte("ab€c"), 5))
}
