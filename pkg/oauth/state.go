package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jotterhq/photolink/pkg/errors"
	"github.com/jotterhq/photolink/pkg/storage"
)

// fieldOAuthState is the per-subject key field holding the pending CSRF state.
const fieldOAuthState = "oauthState"

// stateSeparator joins the CSRF value and the subject inside the state
// parameter. It never appears inside a generated CSRF value.
const stateSeparator = "|"

// StateManager generates and verifies single-use CSRF state values bound to
// a subject. At most one unconsumed state exists per subject: a new
// authorization attempt overwrites the prior one, so only the most recent
// attempt can succeed.
type StateManager struct {
	store storage.Store
	ns    storage.Namespace
}

// NewStateManager creates a StateManager persisting into store under prefix.
func NewStateManager(store storage.Store, prefix string) *StateManager {
	return &StateManager{
		store: store,
		ns:    storage.NewNamespace(prefix),
	}
}

// Begin generates a fresh CSRF value for subject, stores it, and returns it.
// The value concatenates two independent random sources and a timestamp so
// that even a weakened RNG cannot produce a collision.
func (m *StateManager) Begin(ctx context.Context, subject string) (string, error) {
	value, err := newStateValue()
	if err != nil {
		return "", err
	}
	key := m.ns.Key(subject, fieldOAuthState)
	if err := m.store.Set(ctx, key, value); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return value, nil
}

// Verify consumes the stored state for subject and compares it with received.
// The stored value is deleted regardless of outcome, so no state value can be
// replayed. Absent or unequal state yields a state-mismatch error.
func (m *StateManager) Verify(ctx context.Context, subject, received string) error {
	key := m.ns.Key(subject, fieldOAuthState)

	stored, err := m.store.Get(ctx, key)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NewStateMismatchError("no pending authorization for subject", nil)
	}
	if err != nil {
		return fmt.Errorf("read oauth state: %w", err)
	}

	// Single use: consume before comparing so even a failed comparison
	// burns the stored value.
	if err := m.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("consume oauth state: %w", err)
	}

	if received == "" ||
		subtle.ConstantTimeCompare([]byte(stored), []byte(received)) != 1 {
		return errors.NewStateMismatchError("state value does not match pending authorization", nil)
	}
	return nil
}

// newStateValue produces a CSRF value with well over 128 bits of entropy:
// 16 bytes from crypto/rand, a v4 UUID, and a millisecond timestamp.
func newStateValue() (string, error) {
	randBytes := make([]byte, 16)
	if _, err := rand.Read(randBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	parts := []string{
		base64.RawURLEncoding.EncodeToString(randBytes),
		strings.ReplaceAll(uuid.NewString(), "-", ""),
		strconv.FormatInt(time.Now().UnixMilli(), 36),
	}
	return strings.Join(parts, ""), nil
}

// EncodeStateParam packs the CSRF value and subject into the outgoing state
// parameter ("<csrf>|<subject>"). An empty subject yields the bare CSRF
// value, and the callback resolves it to the anonymous namespace.
func EncodeStateParam(csrf, subject string) string {
	if subject == "" {
		return csrf
	}
	return csrf + stateSeparator + subject
}

// DecodeStateParam splits an incoming state parameter into its CSRF value
// and subject. A parameter without the separator carries no subject.
func DecodeStateParam(state string) (csrf, subject string) {
	csrf, subject, _ = strings.Cut(state, stateSeparator)
	return csrf, subject
}
