package utils

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient is a thin wrapper around http.Client with default headers and
// optional proxy support. Per-call deadlines come from the caller's context;
// the client timeout is only an upper bound.
type HTTPClient struct {
	client  *http.Client
	headers map[string]string
}

func NewHTTPClient(timeout int) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *HTTPClient) Do(ctx context.Context, method, urlStr string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, err
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.client.Do(req)
}

func (c *HTTPClient) PostJSON(ctx context.Context, urlStr string, body io.Reader) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, urlStr, body, "application/json")
}

func (c *HTTPClient) AddHeader(key, value string) {
	c.headers[key] = value
}

func (c *HTTPClient) SetTimeout(timeout int) {
	c.client.Timeout = time.Duration(timeout) * time.Second
}

func (c *HTTPClient) SetProxy(proxyURL string) {
	if proxyURL == "" {
		c.client.Transport = nil
		return
	}

	proxy, err := url.Parse(proxyURL)
	if err != nil {
		return
	}

	c.client.Transport = &http.Transport{
		Proxy: http.ProxyURL(proxy),
	}
}
