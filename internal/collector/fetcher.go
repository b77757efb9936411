package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"SectorPulse/internal/model"
)

// Fetcher retrieves daily price history. An empty slice with a nil error
// means the provider has no data for the symbol.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, days int) ([]model.Bar, error)
	Name() string
}

// Defaults shared by the HTTP fetchers.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Option configures an HTTP fetcher.
type Option func(*httpBase)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(baseURL string) Option {
	return func(b *httpBase) { b.baseURL = baseURL }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *httpBase) { b.client = c }
}

// WithProxy routes requests through proxyURL. Invalid URLs are ignored.
func WithProxy(proxyURL string) Option {
	return func(b *httpBase) {
		if proxyURL == "" {
			return
		}
		if u, err := url.Parse(proxyURL); err == nil {
			b.client.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
		}
	}
}

// WithRateLimit sets the request rate. Zero or less disables limiting.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(b *httpBase) {
		if requestsPerSecond <= 0 {
			b.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// httpBase carries what the HTTP fetchers share.
type httpBase struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPBase(defaultURL string, opts []Option) httpBase {
	b := httpBase{
		baseURL: defaultURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}
