package auth

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// OSEnv reads from the process environment.
var OSEnv EnvLookup = os.LookupEnv

// AuthorityConfig carries the inputs needed to derive the expected token
// issuer for a Cognito user pool.
type AuthorityConfig struct {
	// UserPoolID identifies the user pool (e.g. "us-east-2_AbCdEf123"). Required.
	UserPoolID string
	// Region is the region supplied by the broader cloud configuration. When
	// set it takes precedence over the environment.
	Region string
	// RequireRegion turns the DefaultRegion fallback into a configuration error.
	RequireRegion bool
}

// Authority is the expected token issuer URL of a user pool. It doubles as
// the base URL for OpenID discovery and key retrieval. The zero value is not
// usable; construct one with ResolveAuthority.
type Authority struct {
	url    string
	region Region
	source RegionSource
	poolID string
}

// ResolveAuthority derives the Authority from cfg, consulting env only when
// cfg.Region is blank. It performs no network calls.
func ResolveAuthority(cfg AuthorityConfig, env EnvLookup) (Authority, error) {
	poolID := strings.TrimSpace(cfg.UserPoolID)
	if poolID == "" {
		return Authority{}, &ConfigError{Field: "user_pool_id", Reason: "user pool id is required"}
	}
	if strings.ContainsAny(poolID, "/?#% \t\r\n") {
		return Authority{}, &ConfigError{Field: "user_pool_id", Reason: fmt.Sprintf("%q contains characters not allowed in a user pool id", poolID)}
	}
	region, source, err := ResolveRegion(cfg.Region, env, cfg.RequireRegion)
	if err != nil {
		return Authority{}, err
	}

	raw := "https://" + region.IssuerHost() + "/" + poolID
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return Authority{}, &ConfigError{Field: "authority", Reason: fmt.Sprintf("derived authority %q is not a valid URL", raw), Err: err}
	}
	return Authority{url: u.String(), region: region, source: source, poolID: poolID}, nil
}

// String returns the authority URL.
func (a Authority) String() string { return a.url }

// Issuer returns the value tokens must carry in their "iss" claim.
func (a Authority) Issuer() string { return a.url }

func (a Authority) Region() Region             { return a.region }
func (a Authority) RegionSource() RegionSource { return a.source }
func (a Authority) UserPoolID() string         { return a.poolID }

// IsZero reports whether a was never resolved.
func (a Authority) IsZero() bool { return a.url == "" }

// JWKSURL returns the user pool's signing key set location.
func (a Authority) JWKSURL() string { return a.url + "/.well-known/jwks.json" }

// DiscoveryURL returns the OpenID provider configuration document location.
func (a Authority) DiscoveryURL() string { return a.url + "/.well-known/openid-configuration" }

// PoolRegionMismatch reports whether the user pool id carries a region prefix
// that differs from the resolved region. Such a pool cannot issue tokens for
// this authority, so every request would be rejected.
func (a Authority) PoolRegionMismatch() bool {
	prefix, _, ok := strings.Cut(a.poolID, "_")
	if !ok {
		return false
	}
	if _, err := LookupRegion(prefix); err != nil {
		return false
	}
	return !strings.EqualFold(prefix, a.region.SystemName)
}
