package auth

import (
	"context"
	"errors"
	"time"

	"github.com/ggoodman/cognito-auth-go/internal/jwtauth"
)

// ErrUnavailable indicates the gate could not reach a decision, e.g. because
// the revocation store failed. The request must be rejected.
var ErrUnavailable = errors.New("authentication unavailable")

// Denylist reports revoked token identifiers (jti or origin_jti).
type Denylist interface {
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// AccessTokenAuthOption configures optional aspects of the access token
// authenticator (client ids, scopes, algorithms, leeway, etc.).
type AccessTokenAuthOption func(*accessTokenOptions)

type accessTokenOptions struct {
	allowedAlgs []string
	leeway      time.Duration
	clientIDs   []string
	hooks       []TokenValidatedHook
	denylist    Denylist
}

// WithClientIDs restricts accepted tokens to those minted for the given app
// clients (the access token "client_id" claim).
func WithClientIDs(ids ...string) AccessTokenAuthOption {
	return func(o *accessTokenOptions) {
		o.clientIDs = append(o.clientIDs, ids...)
	}
}

// WithRequiredScopes requires all of the provided scopes to be present in the
// space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) AccessTokenAuthOption {
	return WithHooks(RequireScopes(scopes...))
}

// WithAnyRequiredScope requires at least one of the provided scopes to be present.
func WithAnyRequiredScope(scopes ...string) AccessTokenAuthOption {
	return WithHooks(RequireAnyScope(scopes...))
}

// WithRequiredGroups requires membership in all of the given user pool groups.
func WithRequiredGroups(groups ...string) AccessTokenAuthOption {
	return WithHooks(RequireGroups(groups...))
}

// WithHooks appends hooks that run after EnforceAccessToken, in order.
func WithHooks(hooks ...TokenValidatedHook) AccessTokenAuthOption {
	return func(o *accessTokenOptions) {
		o.hooks = append(o.hooks, hooks...)
	}
}

// WithDenylist rejects tokens whose jti or origin_jti has been revoked.
func WithDenylist(d Denylist) AccessTokenAuthOption {
	return func(o *accessTokenOptions) { o.denylist = d }
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
// Defaults to ["RS256"], which is what Cognito signs with.
func WithAllowedAlgs(algs ...string) AccessTokenAuthOption {
	return func(o *accessTokenOptions) {
		o.allowedAlgs = append([]string(nil), algs...)
	}
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) AccessTokenAuthOption {
	return func(o *accessTokenOptions) { o.leeway = d }
}

func buildOptions(opts []AccessTokenAuthOption) *accessTokenOptions {
	o := &accessTokenOptions{leeway: -1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// jwtConfig translates options into the pipeline configuration.
// EnforceAccessToken always runs first.
func (o *accessTokenOptions) jwtConfig(issuer string) *jwtauth.Config {
	cfg := jwtauth.DefaultConfig()
	cfg.Issuer = issuer
	if len(o.allowedAlgs) > 0 {
		cfg.AllowedAlgs = append([]string(nil), o.allowedAlgs...)
	}
	if o.leeway >= 0 {
		cfg.Leeway = o.leeway
	}
	hooks := []TokenValidatedHook{EnforceAccessToken}
	if len(o.clientIDs) > 0 {
		hooks = append(hooks, RequireClientID(o.clientIDs...))
	}
	hooks = append(hooks, o.hooks...)
	hook := chainHooks(hooks)
	cfg.Hook = func(claims map[string]any) error {
		return hook(Principal{claims: claims}).Err()
	}
	if o.denylist != nil {
		cfg.Denylist = o.denylist
	}
	return cfg
}

// NewFromAuthority returns an Authenticator for tokens issued by the user
// pool behind a. Signing keys are located through the pool's OpenID
// configuration document and refreshed automatically.
func NewFromAuthority(ctx context.Context, a Authority, opts ...AccessTokenAuthOption) (SecurityProvider, error) {
	if a.IsZero() {
		return nil, &ConfigError{Field: "authority", Reason: "authority is required"}
	}
	return NewFromIssuer(ctx, a.Issuer(), opts...)
}

// NewFromIssuer is NewFromAuthority for an issuer URL that did not come out
// of ResolveAuthority, such as a local emulator.
func NewFromIssuer(ctx context.Context, issuer string, opts ...AccessTokenAuthOption) (SecurityProvider, error) {
	if issuer == "" {
		return nil, &ConfigError{Field: "issuer", Reason: "issuer is required"}
	}
	o := buildOptions(opts)
	cfg := o.jwtConfig(issuer)
	internal, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}
	meta := internal.Metadata()
	sec := SecurityConfig{
		Issuer:      cfg.Issuer,
		JWKSURL:     meta.JwksURI,
		ClientIDs:   append([]string(nil), o.clientIDs...),
		AllowedAlgs: append([]string(nil), cfg.AllowedAlgs...),
		Leeway:      cfg.Leeway,
	}
	if meta.AuthorizationEndpoint != "" || meta.TokenEndpoint != "" {
		sec.OIDC = &OIDCExtra{
			AuthorizationEndpoint: meta.AuthorizationEndpoint,
			TokenEndpoint:         meta.TokenEndpoint,
			UserinfoEndpoint:      meta.UserinfoEndpoint,
			ScopesSupported:       append([]string(nil), meta.ScopesSupported...),
		}
	}
	sec.Normalize()
	return &adapter{a: internal, sec: sec}, nil
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a   jwtauth.Authenticator
	sec SecurityConfig
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		// Map internal sentinel errors to public errors used by the middleware.
		switch {
		case errors.Is(err, ErrInsufficientScope):
			return nil, err
		case errors.Is(err, jwtauth.ErrUnavailable):
			return nil, errors.Join(ErrUnavailable, err)
		case errors.Is(err, jwtauth.ErrRevoked):
			return nil, errors.Join(ErrUnauthorized, ErrRevoked, err)
		}
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return userInfoAdapter{ui: ui, p: NewPrincipal(ui.ClaimSet())}, nil
}

func (ad *adapter) SecurityConfig() SecurityConfig { return ad.sec.Copy() }

type userInfoAdapter struct {
	ui jwtauth.UserInfo
	p  Principal
}

func (u userInfoAdapter) UserID() string       { return u.ui.UserID() }
func (u userInfoAdapter) Claims(ref any) error { return u.ui.Claims(ref) }
func (u userInfoAdapter) Principal() Principal { return u.p }

// FailureReason classifies an authentication error into a short stable label
// for logs and metrics.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotAccessToken):
		return "token_use"
	case errors.Is(err, ErrInsufficientScope):
		return "scope"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	var se *jwtauth.StageError
	if errors.As(err, &se) {
		return string(se.Stage)
	}
	return "unknown"
}
