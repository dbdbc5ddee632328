package networking

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEndpointURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		url         string
		expectError bool
	}{
		{
			name:        "https URL is valid",
			url:         "https://example.com/oauth/token",
			expectError: false,
		},
		{
			name:        "http localhost allowed for development",
			url:         "http://localhost:8080/token",
			expectError: false,
		},
		{
			name:        "http loopback allowed for development",
			url:         "http://127.0.0.1:8080/token",
			expectError: false,
		},
		{
			name:        "http non-localhost rejected",
			url:         "http://example.com/token",
			expectError: true,
		},
		{
			name:        "relative URL rejected",
			url:         "/oauth/token",
			expectError: true,
		},
		{
			name:        "unsupported scheme rejected",
			url:         "ftp://example.com/token",
			expectError: true,
		},
		{
			name:        "empty URL rejected",
			url:         "",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateEndpointURL(tt.url)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatingTransportRejectsPlainHTTP(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	strict := &http.Client{Transport: &ValidatingTransport{Transport: http.DefaultTransport}}
	//nolint:noctx // transport-level behavior under test
	_, err := strict.Get(ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not HTTPS")

	relaxed := &http.Client{Transport: &ValidatingTransport{
		Transport:      http.DefaultTransport,
		AllowPlainHTTP: true,
	}}
	//nolint:noctx // transport-level behavior under test
	resp, err := relaxed.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerTransportSetsAuthorization(t *testing.T) {
	t.Parallel()

	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	client := NewHttpClientBuilder().
		WithBearerToken("AT1").
		WithPlainHTTP(true).
		Build()

	//nolint:noctx // builder output under test
	resp, err := client.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer AT1", gotAuth)
}

func TestPreviewBody(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a b", PreviewBody([]byte("a\n  b\n")))

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	preview := PreviewBody(long)
	assert.LessOrEqual(t, len(preview), 203)
	assert.Contains(t, preview, "...")
}
