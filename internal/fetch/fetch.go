// Package fetch retrieves source artifacts over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/matzegebbe/replicator/internal/failure"
)

const (
	DefaultRetryMax = 2
	userAgent       = "replicator"
	maxErrorBody    = 512
)

// Fetcher is the "fetch bytes from URL" capability.
type Fetcher interface {
	// Get returns the full response body.
	Get(ctx context.Context, url string) ([]byte, error)
	// Download streams the response body into w and returns the number of
	// bytes written.
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Options tunes the HTTP client. Zero durations keep the retryablehttp defaults.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	// Transport overrides the underlying round tripper.
	Transport http.RoundTripper
}

// Client fetches artifacts with bounded retries for transient failures.
// Client errors (4xx other than 429) are never retried.
type Client struct {
	http   *retryablehttp.Client
	logger logr.Logger
}

// New builds a Client. A negative RetryMax disables retries.
func New(logger logr.Logger, opts Options) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = opts.RetryMax
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if opts.RetryWaitMin > 0 {
		c.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		c.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.Timeout > 0 {
		c.HTTPClient.Timeout = opts.Timeout
	}
	if opts.Transport != nil {
		c.HTTPClient.Transport = opts.Transport
	}
	logger = logger.WithName("fetch")
	c.Logger = leveledLogger{log: logger}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{http: c, logger: logger}
}

func (c *Client) open(ctx context.Context, url string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &failure.TransferError{Op: "fetch", Target: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &failure.TransferError{Op: "fetch", Target: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &failure.TransferError{
			Op:     "fetch",
			Target: url,
			Output: strings.TrimSpace(string(body)),
			Err:    &StatusError{StatusCode: resp.StatusCode},
		}
	}
	return resp, nil
}

func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	c.logger.V(1).Info("fetching", "url", url)
	resp, err := c.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &failure.TransferError{Op: "fetch", Target: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return data, nil
}

func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	resp, err := c.open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	log := c.logger.WithValues("url", url)
	pw := newProgressWriter(w, resp.ContentLength, log)
	n, err := io.Copy(pw, resp.Body)
	if err != nil {
		return n, &failure.TransferError{Op: "download", Target: url, Err: err}
	}
	pw.finish()
	return n, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err carries a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// leveledLogger adapts logr to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log logr.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, append(keysAndValues, "severity", "error")...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.V(1).Info(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.V(2).Info(msg, keysAndValues...)
}
