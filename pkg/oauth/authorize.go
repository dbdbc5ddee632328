package oauth

import (
	"context"

	"golang.org/x/oauth2"
)

// AuthorizeURL builds the provider authorization URL for subject and records
// a fresh CSRF state for the attempt. The URL requests offline access and
// forced re-consent so a refresh token is reliably issued even for returning
// users, and carries the subject inside the state parameter so the callback
// can recover the identity from a redirect with no other session context.
func (f *Flow) AuthorizeURL(ctx context.Context, subject string) (string, error) {
	csrf, err := f.states.Begin(ctx, subject)
	if err != nil {
		return "", err
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	}

	return f.oauth2Config.AuthCodeURL(EncodeStateParam(csrf, subject), opts...), nil
}
