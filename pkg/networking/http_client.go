// Package networking provides HTTP plumbing shared by the OAuth flow and the
// resource fetcher: a client builder with conservative timeouts and a typed
// HTTP error for status-code matching.
package networking

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient is the interface implemented by *http.Client, extracted so tests
// can substitute a fake transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HttpTimeout is the timeout for outgoing HTTP requests
const HttpTimeout = 30 * time.Second

// ValidatingTransport is for validating URLs prior to request
type ValidatingTransport struct {
	Transport http.RoundTripper

	// AllowPlainHTTP permits http:// URLs for localhost targets, used by
	// tests that stand up httptest provider endpoints.
	AllowPlainHTTP bool
}

// RoundTrip validates the request URL prior to forwarding
func (t *ValidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	parsedUrl, err := url.Parse(req.URL.String())
	if err != nil {
		return nil, fmt.Errorf("the supplied URL %s is malformed", req.URL.String())
	}

	if parsedUrl.Scheme != "https" {
		if !(t.AllowPlainHTTP && parsedUrl.Scheme == "http" && isLocalhost(parsedUrl.Hostname())) {
			return nil, fmt.Errorf("the supplied URL %s is not HTTPS scheme", req.URL.String())
		}
	}

	return t.Transport.RoundTrip(req)
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// bearerTransport adds Bearer token authentication to HTTP requests
type bearerTransport struct {
	transport http.RoundTripper
	token     string
}

// RoundTrip adds the Authorization header and forwards the request
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original
	newReq := req.Clone(req.Context())
	newReq.Header.Set("Authorization", "Bearer "+t.token)

	return t.transport.RoundTrip(newReq)
}

// HttpClientBuilder provides a fluent interface for building HTTP clients
type HttpClientBuilder struct {
	clientTimeout         time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	bearerToken           string
	allowPlainHTTP        bool
}

// NewHttpClientBuilder returns a new HttpClientBuilder
func NewHttpClientBuilder() *HttpClientBuilder {
	return &HttpClientBuilder{
		clientTimeout:         HttpTimeout,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 10 * time.Second,
	}
}

// WithTimeout overrides the overall client timeout
func (b *HttpClientBuilder) WithTimeout(d time.Duration) *HttpClientBuilder {
	if d > 0 {
		b.clientTimeout = d
	}
	return b
}

// WithBearerToken sets a static bearer token added to every request
func (b *HttpClientBuilder) WithBearerToken(token string) *HttpClientBuilder {
	b.bearerToken = token
	return b
}

// WithPlainHTTP allows http:// URLs for localhost targets
func (b *HttpClientBuilder) WithPlainHTTP(allow bool) *HttpClientBuilder {
	b.allowPlainHTTP = allow
	return b
}

// Build creates the configured HTTP client
func (b *HttpClientBuilder) Build() *http.Client {
	transport := &http.Transport{
		TLSHandshakeTimeout:   b.tlsHandshakeTimeout,
		ResponseHeaderTimeout: b.responseHeaderTimeout,
	}

	// Start with validation transport
	var clientTransport http.RoundTripper = &ValidatingTransport{
		Transport:      transport,
		AllowPlainHTTP: b.allowPlainHTTP,
	}

	if b.bearerToken != "" {
		clientTransport = &bearerTransport{
			transport: clientTransport,
			token:     b.bearerToken,
		}
	}

	return &http.Client{
		Transport: clientTransport,
		Timeout:   b.clientTimeout,
	}
}

// ValidateEndpointURL checks that rawURL is an absolute https URL (http is
// accepted for localhost so development setups work). Used to fail fast on
// misconfigured provider endpoints before any redirect happens.
func ValidateEndpointURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("URL must be absolute: %s", rawURL)
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if isLocalhost(parsed.Hostname()) {
			return nil
		}
		return fmt.Errorf("http scheme is only allowed for localhost: %s", rawURL)
	default:
		return fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
}

// PreviewBody returns a short, single-line preview of a response body for
// error messages.
func PreviewBody(body []byte) string {
	const maxPreview = 200
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > maxPreview {
		s = s[:maxPreview] + "..."
	}
	return s
}
