// Package upstream fetches the gnome population and gnome photos from the
// remote source.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/telemetry"
)

const (
	// DefaultSourceURL is the published Brastlewark census.
	DefaultSourceURL = "https://raw.githubusercontent.com/rrafols/mobile_test/master/data.json"

	// DefaultTimeout is the connect and read timeout for upstream requests.
	DefaultTimeout = 60 * time.Second

	// DefaultImageSize is the edge length photos are resized to.
	DefaultImageSize = 100

	// maxErrorBody caps how much of a failed response is kept in the error.
	maxErrorBody = 512
)

// Client fetches from the remote source.
type Client struct {
	sourceURL       string
	client          *http.Client
	timeout         time.Duration
	upgradeInsecure bool
	userAgent       string
	width, height   int
	validate        *validator.Validate
	logger          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithSourceURL sets the population document URL.
func WithSourceURL(url string) Option {
	return func(c *Client) {
		c.sourceURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout sets the timeout of the default HTTP client.
// It has no effect when WithHTTPClient is also used.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUpgradeInsecure rewrites http:// photo URLs to https:// before fetching.
func WithUpgradeInsecure(upgrade bool) Option {
	return func(c *Client) {
		c.upgradeInsecure = upgrade
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithImageSize sets the dimensions photos are resized to.
func WithImageSize(width, height int) Option {
	return func(c *Client) {
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new upstream client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		sourceURL:       DefaultSourceURL,
		timeout:         DefaultTimeout,
		upgradeInsecure: true,
		width:           DefaultImageSize,
		height:          DefaultImageSize,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{
			Timeout:   c.timeout,
			Transport: telemetry.NewInstrumentedTransport(nil, telemetry.ResourcePopulation),
		}
	}
	c.logger = c.logger.With("component", "upstream")
	return c
}

// SourceURL returns the population document URL.
func (c *Client) SourceURL() string {
	return c.sourceURL
}

// get performs a GET and returns the decoded body. Any non-2xx status is a
// transport error. The caller must close the returned body.
func (c *Client) get(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrTransport, "creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrTransport, "performing request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, gnomecache.Errorf(gnomecache.ErrTransport, "upstream returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := decodeBody(resp)
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	c.logger.Debug("upstream response",
		"url", url,
		"status", resp.StatusCode,
		"content_encoding", resp.Header.Get("Content-Encoding"),
		"duration", time.Since(start),
	)
	return body, nil
}

// decodeBody undoes the Content-Encoding of resp. Closing the result also
// closes resp.Body.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, gnomecache.Errorf(gnomecache.ErrParse, "reading gzip body: %w", err)
		}
		return &decodedBody{Reader: gz, closers: []io.Closer{gz, resp.Body}}, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, gnomecache.Errorf(gnomecache.ErrParse, "reading zstd body: %w", err)
		}
		rc := zr.IOReadCloser()
		return &decodedBody{Reader: rc, closers: []io.Closer{rc, resp.Body}}, nil
	default:
		return nil, gnomecache.Errorf(gnomecache.ErrParse, "unsupported content encoding %q", enc)
	}
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return fmt.Errorf("closing body: %w", first)
	}
	return nil
}
