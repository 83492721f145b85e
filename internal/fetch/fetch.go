// Package fetch is the guarded outbound HTTP capability. Only http and https
// schemes, only allowed methods, no private or loopback targets unless the
// policy opts in, and every redirect hop re-validated. The address check runs
// at dial time on the resolved IP, so a hostname that re-resolves to a
// private address between validation and connection is still caught.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/ppiankov/toolgate/internal/blocklist"
	"github.com/ppiankov/toolgate/internal/guard"
)

// Service holds the compiled egress policy. Rebuilt on reload.
type Service struct {
	Methods      []string
	AllowPrivate bool
	Blocklist    *blocklist.Blocklist
	Limits       guard.Limits
}

// Result is the outcome of a guarded fetch.
type Result struct {
	URL         string `json:"url"`
	Status      int    `json:"status"`
	Body        string `json:"body"`
	Truncated   bool   `json:"truncated"`
	ContentType string `json:"content_type"`
}

// maxRedirects bounds a redirect chain.
const maxRedirects = 5

// Fetch performs one guarded HTTP request. maxBytes and timeoutSeconds zero
// mean the policy caps. The response body is never an error: a 500 from the
// target is a valid Result with Status 500.
func (s Service) Fetch(ctx context.Context, rawURL, method string, maxBytes int64, timeoutSeconds int) (*Result, error) {
	if rej := s.validateURL(rawURL); rej != nil {
		return nil, rej
	}

	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)
	if !memberFold(s.Methods, method) {
		return nil, guard.Reject(guard.KindCommandNotAllowed, "method %q is not in the allowed set", method)
	}

	cap, rej := guard.CapBytes(maxBytes, s.Limits.MaxReadBytes)
	if rej != nil {
		return nil, rej
	}
	timeout, rej := s.Limits.ClampTimeout(timeoutSeconds)
	if rej != nil {
		return nil, rej
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, guard.Reject(guard.KindMalformedSyntax, "url cannot be parsed: %v", err)
	}

	client := &http.Client{
		Transport: s.transport(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			// Every hop is re-validated; a blocked redirect aborts the chain.
			if rej := s.validateURL(req.URL.String()); rej != nil {
				return rej
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		// A redirect rejection surfaces wrapped in a *url.Error.
		if rej, ok := guard.AsRejection(err); ok {
			return nil, rej
		}
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, cap+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", rawURL, err)
	}
	body, truncated := guard.Truncate(data, cap)

	return &Result{
		URL:         rawURL,
		Status:      resp.StatusCode,
		Body:        string(body),
		Truncated:   truncated,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// validateURL checks scheme, host, and blocklist. Address privacy is checked
// separately at dial time.
func (s Service) validateURL(rawURL string) *guard.Rejection {
	if rawURL == "" {
		return guard.Reject(guard.KindMalformedSyntax, "url is empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return guard.Reject(guard.KindMalformedSyntax, "url cannot be parsed: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return guard.Reject(guard.KindBlocked, "scheme %q is not permitted", u.Scheme)
	}
	if u.Host == "" {
		return guard.Reject(guard.KindMalformedSyntax, "url has no host")
	}
	if s.Blocklist.MatchURL(rawURL) {
		return guard.Reject(guard.KindBlocked, "url matches a blocked pattern")
	}
	return nil
}

// transport dials with an address control that rejects private, loopback,
// link-local, and unspecified targets unless the policy allows them.
func (s Service) transport() http.RoundTripper {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, c syscall.RawConn) error {
			if s.AllowPrivate {
				return nil
			}
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return fmt.Errorf("dial %s: %w", address, err)
			}
			ip := net.ParseIP(host)
			if ip == nil {
				return fmt.Errorf("dial %s: not an IP", address)
			}
			if isPrivate(ip) {
				return guard.Reject(guard.KindBlocked, "target resolves to a private address")
			}
			return nil
		},
	}
	return &http.Transport{
		DialContext:       dialer.DialContext,
		ForceAttemptHTTP2: true,
	}
}

func isPrivate(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

func memberFold(set []string, s string) bool {
	for _, m := range set {
		if strings.EqualFold(m, s) {
			return true
		}
	}
	return false
}
