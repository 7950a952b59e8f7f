package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	DefaultHeaders     map[string]string
	// MaxRetries bounds the retransmission attempts on transport
	// failures. 0 disables retries.
	MaxRetries uint64
}

// HTTPResponse is a bank reply as handed to the adapter parsers.
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// HTTPClient performs the bank round-trips for requests the adapters
// prepare. Network failures and 5xx replies surface as TransportError
// and are retried with exponential backoff; any other status is
// returned as-is for the adapter to interpret.
type HTTPClient struct {
	config *HTTPClientConfig
	client *http.Client
}

// NewHTTPClient creates a client from config, applying a 30 second
// default timeout.
func NewHTTPClient(config *HTTPClientConfig) *HTTPClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	return &HTTPClient{
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// CreateHTTPClientConfig builds the standard client configuration.
// Sandbox endpoints of several banks run on certificates that do not
// verify, so TLS verification is relaxed outside production.
func CreateHTTPClientConfig(isProduction bool, timeout time.Duration) *HTTPClientConfig {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPClientConfig{
		Timeout:            timeout,
		InsecureSkipVerify: !isProduction,
		MaxRetries:         2,
		DefaultHeaders: map[string]string{
			"Accept":     "*/*",
			"User-Agent": "MewsPay/1.0",
		},
	}
}

// Do sends a prepared bank request. The kind tags transport errors with
// the protocol family they belong to.
func (c *HTTPClient) Do(ctx context.Context, kind Kind, req *Request) (*HTTPResponse, error) {
	var resp *HTTPResponse

	backoff := retry.WithMaxRetries(c.config.MaxRetries, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		resp, err = c.send(ctx, kind, req)
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *HTTPClient) send(ctx context.Context, kind Kind, req *Request) (*HTTPResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	contentType := req.ContentType
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, &ProtocolError{Gateway: kind, Reason: "invalid request", Err: err}
	}

	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.SOAPAction != "" {
		httpReq.Header.Set("SOAPAction", req.SOAPAction)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Gateway: kind, Op: method + " " + req.URL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Gateway: kind, Op: "read response", Err: err}
	}

	response := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &TransportError{Gateway: kind, Op: method + " " + req.URL,
			Err: &httpStatusError{status: resp.StatusCode}}
	}

	return response, nil
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return "unexpected status " + http.StatusText(e.status)
}
