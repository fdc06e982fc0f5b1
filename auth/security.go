package auth

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"time"

	"github.com/ggoodman/cognito-auth-go/internal/jwtauth"
)

// SecurityConfig is the immutable description of how this resource
// validates bearer tokens. Authenticators built from discovery expose one via
// SecurityDescriptor; callers that cannot reach the discovery document can
// populate one and call NewStaticAuthenticator.
type SecurityConfig struct {
	Issuer      string
	JWKSURL     string
	ClientIDs   []string      // optional client_id allow-list
	AllowedAlgs []string      // default: ["RS256"] if empty
	Leeway      time.Duration // clock skew tolerance (default 60s)

	OIDC *OIDCExtra // optional metadata learned from discovery
}

// OIDCExtra carries advertisement-only endpoints from the user pool's
// OpenID configuration. None of them take part in token validation.
type OIDCExtra struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserinfoEndpoint      string
	ScopesSupported       []string
}

// SecurityConfigFor returns the static configuration for a resolved authority.
func SecurityConfigFor(a Authority) SecurityConfig {
	c := SecurityConfig{Issuer: a.Issuer(), JWKSURL: a.JWKSURL()}
	c.Normalize()
	return c
}

// Normalize fills defaults.
func (c *SecurityConfig) Normalize() {
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.Leeway == 0 {
		c.Leeway = 60 * time.Second
	}
}

// Validate returns an error if required invariants are not met.
func (c SecurityConfig) Validate() error {
	if c.Issuer == "" {
		return errors.New("security: issuer required")
	}
	if u, err := url.Parse(c.Issuer); err != nil || !u.IsAbs() || u.Host == "" {
		return errors.New("security: issuer must be an absolute URL")
	}
	for _, id := range c.ClientIDs {
		if id == "" {
			return errors.New("security: empty client id entry")
		}
	}
	return nil
}

// Copy returns a deep copy safe for mutation by the caller.
func (c SecurityConfig) Copy() SecurityConfig {
	dup := c
	dup.ClientIDs = append([]string(nil), c.ClientIDs...)
	dup.AllowedAlgs = append([]string(nil), c.AllowedAlgs...)
	if c.OIDC != nil {
		ox := *c.OIDC
		ox.ScopesSupported = append([]string(nil), c.OIDC.ScopesSupported...)
		dup.OIDC = &ox
	}
	return dup
}

// NewStaticAuthenticator constructs an access token authenticator from this
// configuration without performing discovery. c.JWKSURL is required. Client
// ids, algorithms and leeway from c apply in addition to opts.
func (c SecurityConfig) NewStaticAuthenticator(ctx context.Context, opts ...AccessTokenAuthOption) (SecurityProvider, error) {
	cc := c.Copy()
	cc.Normalize()
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if cc.JWKSURL == "" {
		return nil, errors.New("security: JWKSURL required for static authenticator")
	}

	base := []AccessTokenAuthOption{WithAllowedAlgs(cc.AllowedAlgs...), WithLeeway(cc.Leeway)}
	if len(cc.ClientIDs) > 0 {
		base = append(base, WithClientIDs(cc.ClientIDs...))
	}
	o := buildOptions(append(base, opts...))
	jc := o.jwtConfig(cc.Issuer)
	jc.JWKSURL = cc.JWKSURL
	a, err := jwtauth.NewStatic(ctx, jc)
	if err != nil {
		return nil, err
	}
	cc.ClientIDs = append([]string(nil), o.clientIDs...)
	cc.AllowedAlgs = append([]string(nil), jc.AllowedAlgs...)
	cc.Leeway = jc.Leeway
	return &adapter{a: a, sec: cc}, nil
}

// EqualCore returns true if the enforcement identity (issuer + client ids) matches.
func (c SecurityConfig) EqualCore(o SecurityConfig) bool {
	if c.Issuer != o.Issuer {
		return false
	}
	if len(c.ClientIDs) != len(o.ClientIDs) {
		return false
	}
	ac := append([]string(nil), c.ClientIDs...)
	bc := append([]string(nil), o.ClientIDs...)
	sort.Strings(ac)
	sort.Strings(bc)
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}

// SecurityDescriptor exposes security configuration for transports to advertise.
type SecurityDescriptor interface{ SecurityConfig() SecurityConfig }

// SecurityProvider combines validation + descriptor. Returned by constructors.
type SecurityProvider interface {
	Authenticator
	SecurityDescriptor
}
