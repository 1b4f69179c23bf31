package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"fitfeed/internal/metrics"
	"fitfeed/internal/pkg/linkurl"

	"golang.org/x/net/html/charset"
)

// Many shops refuse requests without a browser-like User-Agent
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// FetchMode selects how much of the response the Fetcher retrieves
type FetchMode int

const (
	// ModeProbe issues a HEAD request and never reads a body
	ModeProbe FetchMode = iota
	// ModeFull issues a GET and returns the (size-capped) body
	ModeFull
)

func (m FetchMode) String() string {
	if m == ModeProbe {
		return "probe"
	}
	return "full"
}

// FetchResult is the response of a fetch. Non-2xx statuses are data here.
type FetchResult struct {
	StatusCode int
	Header     http.Header
	Body       string
	FinalURL   *url.URL
	Truncated  bool
}

// NetworkError covers every way a fetch can fail before a status is known:
// timeouts, DNS failures, refused connections, redirect limits, bad URLs.
type NetworkError struct {
	Cause string
	Err   error
}

func (e *NetworkError) Error() string { return e.Cause }

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrBlacklistedRedirect stops a redirect chain at a blacklisted hop
var ErrBlacklistedRedirect = errors.New("redirect to blacklisted domain")

// FetcherConfig holds the outbound request policy
type FetcherConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	// Blacklist, when set, is checked for every redirect hop before it is
	// requested
	Blacklist *Blacklist
}

// Fetcher retrieves third-party pages under a timeout and redirect limit
type Fetcher struct {
	client       *http.Client
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewFetcher creates a fetcher using a dedicated http.Client
func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	maxRedirects := cfg.MaxRedirects
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if cfg.Blacklist != nil {
				if host := linkurl.Domain(req.URL); cfg.Blacklist.IsBlacklisted(host) {
					return fmt.Errorf("%w: %s", ErrBlacklistedRedirect, host)
				}
			}
			return nil
		},
	}

	return &Fetcher{
		client:       client,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger,
	}
}

// Fetch performs the request for the given mode
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, mode FetchMode) (*FetchResult, error) {
	method := http.MethodGet
	if mode == ModeProbe {
		method = http.MethodHead
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &NetworkError{Cause: fmt.Sprintf("invalid request: %v", err), Err: err}
	}

	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	}()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, f.networkError(err)
	}
	defer resp.Body.Close()

	result := &FetchResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		FinalURL:   resp.Request.URL,
	}

	if mode == ModeProbe {
		return result, nil
	}

	// Read one byte past the cap so truncation is detectable
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, f.networkError(err)
	}
	if int64(len(raw)) > f.maxBodyBytes {
		raw = raw[:f.maxBodyBytes]
		result.Truncated = true
		f.logger.Debug("Response body truncated",
			"url", rawURL,
			"limit_bytes", f.maxBodyBytes,
		)
	}

	result.Body = decodeBody(raw, resp.Header.Get("Content-Type"))
	return result, nil
}

// decodeBody converts the body to UTF-8 based on the declared or sniffed
// charset, keeping the raw bytes when no decoder applies
func decodeBody(raw []byte, contentType string) string {
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// networkError normalizes transport failures into a NetworkError with a
// cause string fit for the link record
func (f *Fetcher) networkError(err error) *NetworkError {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &NetworkError{Cause: fmt.Sprintf("timeout of %s exceeded", f.client.Timeout), Err: err}
	case errors.As(err, &dnsErr):
		return &NetworkError{Cause: fmt.Sprintf("DNS lookup failed for %s", dnsErr.Name), Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &NetworkError{Cause: fmt.Sprintf("timeout of %s exceeded", f.client.Timeout), Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &NetworkError{Cause: urlErr.Err.Error(), Err: err}
	}
	return &NetworkError{Cause: err.Error(), Err: err}
}
