package oauth

import (
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jotterhq/photolink/pkg/networking"
	"github.com/jotterhq/photolink/pkg/storage"
)

// Flow orchestrates the photo-library connection: it builds authorization
// URLs, processes provider callbacks, and hands out currently-valid access
// tokens, refreshing them as needed. One Flow serves all subjects;
// per-subject operations are independent and safe for concurrent use.
type Flow struct {
	config       *Config
	oauth2Config *oauth2.Config
	states       *StateManager
	tokens       *TokenStore
	verifier     *ScopeVerifier
	httpClient   *http.Client

	// refreshGroup deduplicates concurrent refreshes per subject; the
	// losers wait for the winner's result instead of racing the token
	// endpoint.
	refreshGroup singleflight.Group
}

// NewFlow validates config and creates a Flow persisting into store.
func NewFlow(config *Config, store storage.Store) (*Flow, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = networking.NewHttpClientBuilder().Build()
	}

	prefix := config.keyPrefix()
	return &Flow{
		config:       config,
		oauth2Config: config.oauth2Config(),
		states:       NewStateManager(store, prefix),
		tokens:       NewTokenStore(store, prefix),
		verifier:     NewScopeVerifier(config.IntrospectURL, httpClient),
		httpClient:   httpClient,
	}, nil
}

// RequiredScope returns the single resource scope this flow must obtain.
func (f *Flow) RequiredScope() string {
	return f.config.RequiredScope
}
