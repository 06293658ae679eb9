package auth

import "context"

// KeyProvider resolves the signing key an adapter's session uses to mint
// the short-lived bearer tokens a site's search API expects. It mirrors
// the key-lookup shape of JWT validation (resolve by ID, not by trusting
// whatever the caller hands you) on the signing side.
type KeyProvider interface {
	// GetKey returns the key identified by keyID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider hands back the same key regardless of keyID. It is
// the common case for a single-secret adapter: one site, one HMAC secret
// loaded from config.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider creates a key provider backed by a single secret.
func NewStaticKeyProvider(key []byte) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the configured secret; keyID is ignored.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	return p.key, nil
}

// Ensure StaticKeyProvider implements KeyProvider.
var _ KeyProvider = (*StaticKeyProvider)(nil)
