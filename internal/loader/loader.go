// Package loader fetches and parses one taxonomy dataset from its remote locator.
//
// A load is a conditional GET: when a previous successful download time is
// known it is sent as If-Modified-Since and a 304 yields an empty batch. The
// payload is fully decoded before anything is returned. The loader has no
// persistence side effects.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/logfields"
	"git.home.luguber.info/inful/taxosync/internal/metrics"
	"git.home.luguber.info/inful/taxosync/internal/observability"
	"git.home.luguber.info/inful/taxosync/internal/retry"
	"git.home.luguber.info/inful/taxosync/internal/taxonomy"
)

const (
	defaultMaxBodyBytes = 64 << 20
	defaultUserAgent    = "taxosync/1.0"
)

// Loader performs conditional fetches against taxonomy locators.
type Loader struct {
	client    *http.Client
	policy    retry.Policy
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
	recorder  metrics.Recorder
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithRetryPolicy sets the backoff policy for retryable failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(l *Loader) { l.policy = p }
}

// WithRateLimit paces outbound requests. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(l *Loader) {
		if rps <= 0 {
			l.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(l *Loader) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps the accepted response size.
func WithMaxBodyBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBody = n
		}
	}
}

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(l *Loader) {
		if r != nil {
			l.recorder = r
		}
	}
}

// New creates a Loader with safe defaults.
func New(opts ...Option) *Loader {
	l := &Loader{
		client:    NewHTTPClient(30 * time.Second),
		policy:    retry.DefaultPolicy(),
		userAgent: defaultUserAgent,
		maxBody:   defaultMaxBodyBytes,
		recorder:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewHTTPClient creates an HTTP client that refuses cross-host redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) == 0 {
				return nil
			}
			if req.URL.Host != via[0].URL.Host {
				return errors.New("redirect to different host blocked")
			}
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
}

// Load fetches d's dataset. sinceEpochMillis is the previous successful
// download time, or 0 when the dataset was never loaded. A "not modified"
// response yields an empty, non-nil slice.
func (l *Loader) Load(ctx context.Context, d taxonomy.Descriptor, sinceEpochMillis int64) ([]taxonomy.Item, error) {
	ctx = observability.WithTaxonomy(ctx, d.Name)
	for attempt := 0; ; attempt++ {
		items, err := l.loadOnce(ctx, d, sinceEpochMillis)
		if err == nil {
			return items, nil
		}
		if !terrors.IsRetryable(err) || attempt >= l.policy.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		l.recorder.IncLoaderRetry(d.Name)
		observability.WarnContext(ctx, "Retrying taxonomy download",
			logfields.Attempt(attempt+1),
			logfields.Error(err))
		if werr := l.policy.Wait(ctx, attempt+1); werr != nil {
			return nil, err
		}
	}
}

func (l *Loader) loadOnce(ctx context.Context, d taxonomy.Descriptor, since int64) ([]taxonomy.Item, error) {
	locator := d.Locator()
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, terrors.NetworkError(locator, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, http.NoBody)
	if err != nil {
		return nil, terrors.InternalError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", l.userAgent)
	if since > 0 {
		req.Header.Set("If-Modified-Since", time.UnixMilli(since).UTC().Format(http.TimeFormat))
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, terrors.NetworkError(locator, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotModified, resp.StatusCode == http.StatusNoContent:
		observability.DebugContext(ctx, "Taxonomy not modified", logfields.SinceMS(since))
		return []taxonomy.Item{}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, terrors.ServerError(locator, resp.StatusCode).WithContext("taxonomy", d.Name)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody+1))
	if err != nil {
		return nil, terrors.NetworkError(locator, fmt.Errorf("read response: %w", err))
	}
	if int64(len(data)) > l.maxBody {
		return nil, terrors.ParseError(locator, fmt.Errorf("response exceeds %d bytes", l.maxBody))
	}

	items, err := d.Decode(bytes.NewReader(data))
	if err != nil {
		observability.WarnContext(ctx, "Discarding malformed taxonomy payload",
			logfields.URL(locator),
			logfields.Error(err))
		return nil, terrors.ParseError(locator, err).WithContext("taxonomy", d.Name)
	}
	return items, nil
}
