package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(maxRedirects int, maxBody int64) *Fetcher {
	return NewFetcher(FetcherConfig{
		Timeout:      time.Second,
		MaxRedirects: maxRedirects,
		MaxBodyBytes: maxBody,
	}, createTestLogger())
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		htmlHandler("<html></html>")(w, r)
	}))
	defer server.Close()

	_, err := newTestFetcher(5, 1024).Fetch(context.Background(), server.URL, ModeFull)
	require.NoError(t, err)
	assert.Equal(t, browserUserAgent, gotUA)
	assert.Contains(t, gotAccept, "text/html")
}

func TestFetchReturnsErrorStatusAsData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "down")
	}))
	defer server.Close()

	result, err := newTestFetcher(5, 1024).Fetch(context.Background(), server.URL, ModeFull)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, result.StatusCode)
	assert.Equal(t, "down", result.Body)
}

func TestFetchProbeModeSkipsBody(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		htmlHandler("<html>body</html>")(w, r)
	}))
	defer server.Close()

	result, err := newTestFetcher(5, 1024).Fetch(context.Background(), server.URL, ModeProbe)
	require.NoError(t, err)
	assert.Equal(t, http.MethodHead, method)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Contains(t, result.Header.Get("Content-Type"), "text/html")
	assert.Empty(t, result.Body)
}

func TestFetchCapsBody(t *testing.T) {
	server := httptest.NewServer(htmlHandler(strings.Repeat("a", 4096)))
	defer server.Close()

	result, err := newTestFetcher(5, 100).Fetch(context.Background(), server.URL, ModeFull)
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Len(t, result.Body, 100)

	result, err = newTestFetcher(5, 4096).Fetch(context.Background(), server.URL, ModeFull)
	require.NoError(t, err)
	assert.False(t, result.Truncated)
	assert.Len(t, result.Body, 4096)
}

func TestFetchRedirectLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var hop int
		fmt.Sscanf(r.URL.Path, "/hop/%d", &hop)
		if hop < 3 {
			http.Redirect(w, r, fmt.Sprintf("/hop/%d", hop+1), http.StatusFound)
			return
		}
		htmlHandler("<html>done</html>")(w, r)
	}))
	defer server.Close()

	t.Run("within limit", func(t *testing.T) {
		result, err := newTestFetcher(3, 1024).Fetch(context.Background(), server.URL+"/hop/0", ModeFull)
		require.NoError(t, err)
		assert.Equal(t, "/hop/3", result.FinalURL.Path)
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := newTestFetcher(2, 1024).Fetch(context.Background(), server.URL+"/hop/0", ModeFull)
		require.Error(t, err)

		var netErr *NetworkError
		require.True(t, errors.As(err, &netErr))
		assert.Contains(t, netErr.Cause, "redirects")
	})
}

func TestFetchConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := newTestFetcher(5, 1024).Fetch(context.Background(), addr, ModeFull)
	require.Error(t, err)

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.NotEmpty(t, netErr.Cause)
}

func TestFetchDecodesDeclaredCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "Café" in Latin-1
		w.Write([]byte{'<', 'b', '>', 'C', 'a', 'f', 0xe9, '<', '/', 'b', '>'})
	}))
	defer server.Close()

	result, err := newTestFetcher(5, 1024).Fetch(context.Background(), server.URL, ModeFull)
	require.NoError(t, err)
	assert.Equal(t, "<b>Café</b>", result.Body)
}

func TestFetchModeString(t *testing.T) {
	assert.Equal(t, "probe", ModeProbe.String())
	assert.Equal(t, "full", ModeFull.String())
}

func TestFetchStopsAtBlacklistedHop(t *testing.T) {
	var hopHits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host == "ads.scam.com" {
			hopHits++
		}
		http.Redirect(w, r, "http://ads.scam.com/next", http.StatusFound)
	}))
	defer server.Close()

	f := NewFetcher(FetcherConfig{
		Timeout:      time.Second,
		MaxRedirects: 5,
		MaxBodyBytes: 1024,
		Blacklist:    NewBlacklist([]string{"scam.com"}),
	}, createTestLogger())
	pinHosts(f, server.Listener.Addr().String())

	_, err := f.Fetch(context.Background(), "http://shop.example/start", ModeFull)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlacklistedRedirect))

	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Contains(t, netErr.Cause, "ads.scam.com")
	assert.Zero(t, hopHits)
}
