// Package secret provides a small, dependency-light secret resolution layer
// flightcrawld uses to keep adapter credentials (e.g. AdapterMetadata's
// AuthSecret) out of config documents in plain text.
//
// It supports:
//   - Strict environment expansion (see ExpandEnvStrict)
//   - Pluggable secret providers (see Provider + Registry)
//   - Resolving secret references in configuration values (see Resolver)
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:FLYTODAY_AUTH_SECRET
//   - Inline use:  Bearer secretref:env:FLYTODAY_AUTH_SECRET
//
// flightcrawld registers [EnvProvider] under the name "env" at startup and
// resolves each adapter's config document through a [Resolver] before
// building its [flightmodel.AdapterMetadata], so an operator can deploy a
// site's auth secret as an environment variable reference instead of a
// literal value.
package secret
