package hostcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/scripthost/backend/internal/config"
	"github.com/GriffinCanCode/scripthost/backend/internal/infrastructure/resilience"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// ErrFetchUnavailable is returned while the fetch breaker is open
var ErrFetchUnavailable = errors.New("fetch unavailable: circuit breaker open")

// Fetch performs outbound HTTP requests for contexts. Hosts must match one
// of the configured glob patterns.
type Fetch struct {
	cfg     config.FetchConfig
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *zap.Logger
}

// NewFetch creates the fetch provider
func NewFetch(cfg config.FetchConfig, log *zap.Logger) *Fetch {
	if log == nil {
		log = zap.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.Retries
	retryClient.RetryWaitMin = 50 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := resty.NewWithClient(&http.Client{
		Transport: &retryablehttp.RoundTripper{Client: retryClient},
	})
	client.
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "scripthost-fetch/1.0")

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	return &Fetch{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, max(int(cfg.RPS), 1)),
		breaker: resilience.New("fetch", resilience.Settings{
			MaxRequests: 2,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				// Be lenient for external hosts
				return counts.ConsecutiveFailures >= 10 ||
					(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
			},
		}),
		log: log.Named("fetch"),
	}
}

// Breaker exposes the outbound circuit breaker
func (f *Fetch) Breaker() *resilience.Breaker {
	return f.breaker
}

// Methods returns fetch method definitions
func (f *Fetch) Methods() []Method {
	return []Method{
		{
			Name:        "fetch",
			Description: "HTTP request to an allow-listed host",
			Parameters: []Parameter{
				{Name: "url", Type: "string", Description: "Absolute http(s) URL", Required: true},
				{Name: "verb", Type: "string", Description: "HTTP method (default GET)", Required: false},
				{Name: "headers", Type: "object", Description: "Request headers", Required: false},
				{Name: "body", Type: "string", Description: "Request body", Required: false},
			},
			Returns: "object",
		},
	}
}

// Execute performs the request
func (f *Fetch) Execute(ctx context.Context, method string, params Params) (any, error) {
	if method != "fetch" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	if !f.cfg.Enabled {
		return nil, fmt.Errorf("%w: fetch is disabled", ErrNotPermitted)
	}

	raw, err := params.String("url")
	if err != nil {
		return nil, err
	}
	target, err := f.check(raw)
	if err != nil {
		return nil, err
	}
	headers, err := params.StringMap("headers")
	if err != nil {
		return nil, err
	}
	verb := strings.ToUpper(params.StringOr("verb", http.MethodGet))

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}
	done, err := f.breaker.Allow()
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			return nil, ErrFetchUnavailable
		}
		return nil, err
	}

	req := f.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetDoNotParseResponse(true)
	if body, ok := params["body"].(string); ok {
		req.SetBody(body)
	}

	resp, err := req.Execute(verb, target.String())
	if err != nil {
		done(false)
		return nil, fmt.Errorf("fetch %s: %w", target.Host, err)
	}
	done(resp.StatusCode() < http.StatusInternalServerError)

	return f.read(resp)
}

func (f *Fetch) check(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: url: %v", ErrInvalidParams, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrNotPermitted, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	for _, pattern := range f.cfg.Allow {
		if ok, _ := doublestar.Match(strings.ToLower(pattern), host); ok {
			return u, nil
		}
		if ok, _ := doublestar.Match(strings.ToLower(pattern), strings.ToLower(u.Host)); ok {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: host %q", ErrNotPermitted, u.Host)
}

func (f *Fetch) read(resp *resty.Response) (any, error) {
	body := resp.RawBody()
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, f.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(data)) > f.cfg.MaxBytes
	if truncated {
		data = data[:f.cfg.MaxBytes]
	}

	headers := make(map[string]any, len(resp.Header()))
	for k, v := range resp.Header() {
		headers[k] = strings.Join(v, ", ")
	}

	contentType := resp.Header().Get("Content-Type")
	out := map[string]any{
		"status":      resp.StatusCode(),
		"headers":     headers,
		"contentType": contentType,
		"truncated":   truncated,
	}
	if text, ok := decodeText(data, contentType); ok {
		out["text"] = text
	} else {
		out["data"] = encode(data)
	}
	return out, nil
}

// decodeText converts textual bodies to UTF-8
func decodeText(data []byte, contentType string) (string, bool) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	textual := strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/json" ||
		strings.HasSuffix(mediaType, "+json") ||
		strings.HasSuffix(mediaType, "xml")
	if !textual {
		return "", false
	}

	r, err := charset.NewReader(strings.NewReader(string(data)), contentType)
	if err != nil {
		return string(data), true
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(data), true
	}
	return string(decoded), true
}
