package toolgate

import (
	"net/http"
	"time"
)

// Option configures a Client at creation time.
type Option func(*Client)

// WithBaseURL sets the gateway address. Default is http://127.0.0.1:8085.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}
