package divera

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile("testdata/pull_all.json")
	require.NoError(t, err)
	return b
}

func TestPullAll(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/pull/all", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(fixture(t))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", WithUCR(17001))
	snap, err := c.PullAll(context.Background())
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "accesskey=secret")
	assert.Contains(t, gotQuery, "ucr=17001")
	assert.Contains(t, gotQuery, "ts_statusplan=")

	assert.Equal(t, "Max Mustermann", snap.FullName())
	assert.Equal(t, "max@example.org", snap.Email())
	assert.Equal(t, 17001, snap.UCRActive)
}

func TestPullAllAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid accesskey", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong")
	_, err := c.PullAll(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestPullAllUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	_, err := c.PullAll(context.Background())
	assert.True(t, errors.Is(err, ErrUpstream))
}

func TestPullAllConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	c := New(srv.URL, "key")
	_, err := c.PullAll(context.Background())
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestPullAllBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	_, err := c.PullAll(context.Background())
	assert.True(t, errors.Is(err, ErrBadResponse))
}

func TestErrorsNeverContainAccessKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "super-secret-key")
	_, err := c.PullAll(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-key")

	err = c.SetStatusByID(context.Background(), 1)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-key")
}

func TestTransportErrorsNeverContainAccessKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	c := New(srv.URL, "super-secret-key")
	_, err := c.PullAll(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConnection))
	assert.NotContains(t, err.Error(), "super-secret-key")
	assert.NotContains(t, err.Error(), "accesskey")

	err = c.SetStatusByID(context.Background(), 1)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret-key")
	assert.NotContains(t, err.Error(), "accesskey")
}

func TestSetStatusByID(t *testing.T) {
	var gotBody string
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v2/statusgeber/set-status", r.URL.Path)
		gotQuery = r.URL.RawQuery
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", WithUCR(17001))
	require.NoError(t, c.SetStatusByID(context.Background(), 3))

	assert.Contains(t, gotQuery, "ucr=17001")
	assert.JSONEq(t, `{"Status":{"id":3}}`, gotBody)
}

func TestSetStatusByName(t *testing.T) {
	snap := loadSnapshot(t)

	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	require.NoError(t, c.SetStatusByName(context.Background(), snap, "Im Dienst"))
	assert.JSONEq(t, `{"Status":{"id":3}}`, gotBody)

	err := c.SetStatusByName(context.Background(), snap, "does not exist")
	assert.True(t, errors.Is(err, ErrStatusNotFound))
}
