package secret

import (
	"context"
	"os"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves secretref:env:<VAR> by reading an environment
// variable. It is the default provider flightcrawld registers so an
// adapter's auth secret can be deployed as "secretref:env:FLYTODAY_AUTH_SECRET"
// instead of a literal value in its config document.
type EnvProvider struct{}

// NewEnvProvider creates a Provider backed by os.LookupEnv.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Resolve returns the value of the environment variable named ref, or an
// empty string if it is unset. Whether an empty result is an error is the
// Resolver's call (its strict flag), not the provider's.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	value, _ := os.LookupEnv(ref)
	return value, nil
}

// Close is a no-op; EnvProvider holds no resources.
func (p *EnvProvider) Close() error { return nil }

var _ Provider = (*EnvProvider)(nil)
