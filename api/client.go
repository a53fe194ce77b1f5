package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// FailureText is what the UI shows for any failed request.
const FailureText = "API error, see console"

// RequestIDHeader carries the id that ties a request to its diagnostic
// lines on both ends.
const RequestIDHeader = "X-Request-ID"

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("device returned %s", e.Status)
	}
	return fmt.Sprintf("device returned %s: %s", e.Status, e.Body)
}

// Result is the outcome of one request. Exactly one of Text or Err is
// meaningful.
type Result struct {
	Text string
	Err  error
}

// Display is the text to put in front of the user.
func (r Result) Display() string {
	if r.Err != nil {
		return FailureText
	}
	return r.Text
}

type Config struct {
	// BaseURL is the device root, e.g. http://192.168.4.1.
	BaseURL string
	// HTTPClient defaults to a client without a timeout.
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client issues encoded requests against one device. It never retries.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *log.Logger
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid device URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid device URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("invalid device URL %q: missing host", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Client{base: base, http: httpClient, logger: logger}, nil
}

// BaseURL returns the device root the client talks to.
func (c *Client) BaseURL() string { return c.base.String() }

// Do sends req and returns the response body verbatim. Failures are logged
// with full detail and reported in Result.Err.
func (c *Client) Do(ctx context.Context, req Request) Result {
	body, _, err := c.send(ctx, req)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Text: string(body)}
}

// send issues req tagged with a fresh request id, which is returned for
// follow-up diagnostics.
func (c *Client) send(ctx context.Context, req Request) ([]byte, string, error) {
	id := uuid.NewString()
	body, err := c.roundTrip(ctx, id, req)
	if err != nil {
		c.logger.Printf("Request %s %s failed: %v", id, req, err)
		return nil, id, err
	}
	return body, id, nil
}

func (c *Client) roundTrip(ctx context.Context, id string, req Request) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.base.String()+req.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set(RequestIDHeader, id)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// IsCanceled reports whether err came from the request's context being
// cancelled or timing out.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
