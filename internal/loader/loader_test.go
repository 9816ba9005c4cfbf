package loader

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/taxosync/internal/config"
	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/retry"
	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

func labelsDescriptor(t *testing.T, base string) taxonomy.Descriptor {
	t.Helper()
	c, err := taxonomy.NewCatalog(base)
	require.NoError(t, err)
	d, ok := c.Lookup(taxonomy.Labels)
	require.True(t, ok)
	return d
}

func labelsJSON(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"tag":"en:label-%d","names":{"en":"Label %d"}}`, i, i)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func fastPolicy(retries int) retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, retries)
}

func TestLoadDecodesFullPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/labels.json", r.URL.Path)
		require.Empty(t, r.Header.Get("If-Modified-Since"))
		require.Equal(t, "taxosync-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(labelsJSON(12)))
	}))
	defer srv.Close()

	l := New(WithUserAgent("taxosync-test"))
	items, err := l.Load(t.Context(), labelsDescriptor(t, srv.URL), 0)
	require.NoError(t, err)
	require.Len(t, items, 12)
	require.Equal(t, "en:label-0", items[0].Key())
}

func TestLoadSendsIfModifiedSince(t *testing.T) {
	since := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, since.Format(http.TimeFormat), r.Header.Get("If-Modified-Since"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	items, err := New().Load(t.Context(), labelsDescriptor(t, srv.URL), since.UnixMilli())
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
}

func TestLoadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(labelsJSON(2)))
	}))
	defer srv.Close()

	items, err := New(WithRetryPolicy(fastPolicy(2))).Load(t.Context(), labelsDescriptor(t, srv.URL), 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.EqualValues(t, 3, calls.Load())
}

func TestLoadGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(WithRetryPolicy(fastPolicy(1))).Load(t.Context(), labelsDescriptor(t, srv.URL), 0)
	require.Error(t, err)
	require.True(t, terrors.IsCategory(err, terrors.CategoryServer))
	require.Equal(t, http.StatusBadGateway, terrors.StatusCode(err))
	require.EqualValues(t, 2, calls.Load())
}

func TestLoadDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(WithRetryPolicy(fastPolicy(3))).Load(t.Context(), labelsDescriptor(t, srv.URL), 0)
	require.Error(t, err)
	require.False(t, terrors.IsRetryable(err))
	require.Equal(t, http.StatusNotFound, terrors.StatusCode(err))
	require.EqualValues(t, 1, calls.Load())
}

func TestLoadRejectsMalformedPayload(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[{"tag":"en:ok"},{"tag":`))
	}))
	defer srv.Close()

	items, err := New(WithRetryPolicy(fastPolicy(3))).Load(t.Context(), labelsDescriptor(t, srv.URL), 0)
	require.Error(t, err)
	require.Nil(t, items)
	require.True(t, terrors.IsCategory(err, terrors.CategoryParse))
	require.EqualValues(t, 1, calls.Load())
}

func TestLoadRejectsPayloadsThatAreNotOneArray(t *testing.T) {
	for name, body := range map[string]string{
		"null":          `null`,
		"trailing data": `[{"tag":"en:a"}] trailing-garbage`,
		"two arrays":    `[{"tag":"en:a"}][{"tag":"en:b"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			items, err := New(WithRetryPolicy(fastPolicy(3))).Load(t.Context(), labelsDescriptor(t, srv.URL), 0)
			require.Error(t, err)
			require.Nil(t, items)
			require.True(t, terrors.IsCategory(err, terrors.CategoryParse))
		})
	}
}

func TestLoadCapsBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(labelsJSON(50)))
	}))
	defer srv.Close()

	_, err := New(WithMaxBodyBytes(64)).Load(t.Context(), labelsDescriptor(t, srv.URL), 0)
	require.Error(t, err)
	require.True(t, terrors.IsCategory(err, terrors.CategoryParse))
}

func TestLoadNetworkFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := New(WithRetryPolicy(fastPolicy(0))).Load(t.Context(), labelsDescriptor(t, base), 0)
	require.Error(t, err)
	require.True(t, terrors.IsCategory(err, terrors.CategoryNetwork))
	require.True(t, terrors.IsRetryable(err))
}

func TestLoadBlocksCrossHostRedirect(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(labelsJSON(1)))
	}))
	defer other.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := strings.Replace(other.URL, "127.0.0.1", "localhost", 1) + r.URL.Path
		http.Redirect(w, r, target, http.StatusFound)
	}))
	defer srv.Close()

	_, err := New(WithRetryPolicy(fastPolicy(0))).Load(t.Context(), labelsDescriptor(t, srv.URL), 0)
	require.Error(t, err)
}
