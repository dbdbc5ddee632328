// Package oauth implements the authorization-code flow and token lifecycle
// for the photo-library connection: CSRF state management, authorization-URL
// construction, callback processing (code exchange + scope verification),
// per-subject token storage, and transparent refresh.
package oauth

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/networking"
)

// DefaultRefreshSkew is how long before expiry a token is refreshed.
// Refreshing early keeps a request from racing the expiry instant.
const DefaultRefreshSkew = 5 * time.Minute

// DefaultKeyPrefix namespaces all persisted flow state in the key-value store.
const DefaultKeyPrefix = "photolink"

// scopeToken matches a bare (non-URL) scope identifier such as
// "photos.readonly".
var scopeToken = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Config contains configuration for the photo-library OAuth flow.
type Config struct {
	// ClientID is the OAuth client ID
	ClientID string

	// ClientSecret is the OAuth client secret
	ClientSecret string

	// RedirectURL is the redirect URL for the OAuth flow. It must match the
	// value registered with the provider byte for byte; mismatches surface
	// as hard-to-diagnose provider errors.
	RedirectURL string

	// AuthURL is the authorization endpoint URL
	AuthURL string

	// TokenURL is the token endpoint URL
	TokenURL string

	// IntrospectURL is the token-introspection (tokeninfo) endpoint URL
	IntrospectURL string

	// RequiredScope is the single resource scope the flow must obtain
	RequiredScope string

	// KeyPrefix namespaces persisted state; defaults to DefaultKeyPrefix
	KeyPrefix string

	// RefreshSkew is how long before expiry tokens are refreshed;
	// defaults to DefaultRefreshSkew
	RefreshSkew time.Duration

	// HTTPClient overrides the HTTP client used for token-endpoint and
	// introspection calls. Tests point this at httptest servers.
	HTTPClient *http.Client
}

// Validate checks the configuration, failing fast on anything that would
// otherwise produce a confusing error deep in the flow.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.NewConfigError("client ID is required", nil)
	}
	if c.AuthURL == "" {
		return errors.NewConfigError("authorization URL is required", nil)
	}
	if c.TokenURL == "" {
		return errors.NewConfigError("token URL is required", nil)
	}
	if c.RedirectURL == "" {
		return errors.NewConfigError("redirect URL is required", nil)
	}
	if err := networking.ValidateEndpointURL(c.AuthURL); err != nil {
		return errors.NewConfigError("invalid authorization URL", err)
	}
	if err := networking.ValidateEndpointURL(c.TokenURL); err != nil {
		return errors.NewConfigError("invalid token URL", err)
	}
	if c.IntrospectURL != "" {
		if err := networking.ValidateEndpointURL(c.IntrospectURL); err != nil {
			return errors.NewConfigError("invalid introspection URL", err)
		}
	}
	if err := ValidateScope(c.RequiredScope); err != nil {
		return err
	}
	return nil
}

// ValidateScope checks that scope is a non-empty, well-formed scope string:
// either an absolute https URI or a bare dotted identifier. Redirecting with
// a broken scope produces an "insufficient scope" failure far from its root
// cause, so this is checked before any redirect.
func ValidateScope(scope string) error {
	if strings.TrimSpace(scope) == "" {
		return errors.NewConfigError("required scope must not be empty", nil)
	}
	if strings.ContainsAny(scope, " \t\n") {
		return errors.NewConfigError(fmt.Sprintf("required scope %q must be a single scope value", scope), nil)
	}
	if strings.Contains(scope, "://") {
		parsed, err := url.Parse(scope)
		if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
			return errors.NewConfigError(fmt.Sprintf("required scope %q is not a valid scope URI", scope), err)
		}
		return nil
	}
	if !scopeToken.MatchString(scope) {
		return errors.NewConfigError(fmt.Sprintf("required scope %q is not a valid scope identifier", scope), nil)
	}
	return nil
}

// refreshSkew returns the configured skew or the default.
func (c *Config) refreshSkew() time.Duration {
	if c.RefreshSkew > 0 {
		return c.RefreshSkew
	}
	return DefaultRefreshSkew
}

// keyPrefix returns the configured prefix or the default.
func (c *Config) keyPrefix() string {
	if c.KeyPrefix != "" {
		return c.KeyPrefix
	}
	return DefaultKeyPrefix
}

// oauth2Config builds the golang.org/x/oauth2 configuration for this flow.
func (c *Config) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       []string{c.RequiredScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL,
			TokenURL: c.TokenURL,
		},
	}
}
