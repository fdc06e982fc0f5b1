package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for access tokens.
type Config struct {
	// Issuer is the exact "iss" value tokens must carry. For discovery it is
	// also the base URL of the provider configuration document.
	Issuer string
	// JWKSURL locates the signing keys. Filled by discovery when empty.
	JWKSURL     string
	AllowedAlgs []string
	Leeway      time.Duration
	// Hook runs after signature, issuer and expiry have been verified. A
	// non-nil error fails authentication.
	Hook func(claims map[string]any) error
	// Denylist, when set, is consulted with the token's jti and origin_jti.
	Denylist Denylist
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

func (c *Config) normalize() {
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
}

// Denylist reports revoked token identifiers.
type Denylist interface {
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// UserInfo is the internal user claims carrier for validated tokens.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
	ClaimSet() map[string]any
}

type userInfo struct {
	sub    string
	claims map[string]any
}

func (u *userInfo) UserID() string           { return u.sub }
func (u *userInfo) ClaimSet() map[string]any { return u.claims }
func (u *userInfo) Claims(ref any) error {
	b, err := json.Marshal(u.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Authenticator validates access tokens and returns a minimal UserInfo
// that exposes the subject and access to raw claims.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// ErrUnauthorized indicates that the access token failed validation and the
// request should be treated as unauthenticated.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// ErrRevoked indicates the token, or the refresh token it was minted from,
// is on the denylist.
var ErrRevoked = errors.New("jwtauth: revoked")

// ErrUnavailable indicates a dependency needed to reach a decision failed.
// Callers must treat it as a rejection.
var ErrUnavailable = errors.New("jwtauth: unavailable")

// Stage names the pipeline step that rejected a token.
type Stage string

const (
	StageMalformed  Stage = "malformed"
	StageSignature  Stage = "signature"
	StageIssuer     Stage = "issuer"
	StageExpiry     Stage = "expiry"
	StageSubject    Stage = "subject"
	StagePolicy     Stage = "policy"
	StageRevocation Stage = "revocation"
)

// StageError ties a rejection to its Stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error { return &StageError{Stage: stage, Err: err} }

// Metadata is the subset of the provider configuration document kept for
// advertisement.
type Metadata struct {
	Issuer                string   `json:"issuer"`
	JwksURI               string   `json:"jwks_uri"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	UserinfoEndpoint      string   `json:"userinfo_endpoint"`
	ScopesSupported       []string `json:"scopes_supported"`
	ResponseTypes         []string `json:"response_types_supported"`
	SigningAlgs           []string `json:"id_token_signing_alg_values_supported"`
}

type authenticator struct {
	cfg     Config
	keyfunc jwt.Keyfunc
	meta    Metadata
}

// Metadata returns what discovery reported. Static authenticators return
// only the issuer and JWKS URL.
func (a *authenticator) Metadata() Metadata { return a.meta }

// NewFromDiscovery fetches the provider configuration document under
// cfg.Issuer and builds an Authenticator from its jwks_uri. The document's
// issuer must equal cfg.Issuer exactly.
func NewFromDiscovery(ctx context.Context, cfg *Config) (*authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta Metadata
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}
	c := *cfg
	c.JWKSURL = meta.JwksURI
	return newAuthenticator(ctx, c, meta)
}

// NewStatic builds an Authenticator from a fixed JWKS URL without discovery.
func NewStatic(ctx context.Context, cfg *Config) (*authenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwks uri required")
	}
	return newAuthenticator(ctx, *cfg, Metadata{Issuer: cfg.Issuer, JwksURI: cfg.JWKSURL})
}

func newAuthenticator(ctx context.Context, cfg Config, meta Metadata) (*authenticator, error) {
	cfg.normalize()

	// Auto-refreshing JWKS; unknown kids trigger a rate-limited refetch.
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	algs := append([]string(nil), cfg.AllowedAlgs...)
	return &authenticator{
		cfg:  cfg,
		meta: meta,
		keyfunc: func(t *jwt.Token) (any, error) {
			if alg := t.Method.Alg(); !slices.Contains(algs, alg) {
				return nil, fmt.Errorf("disallowed alg: %s", alg)
			}
			return kf.Keyfunc(t)
		},
	}, nil
}

// CheckAuthentication runs the pipeline: signature, issuer, expiry, hook,
// subject, then denylist. The first failing step ends it.
func (a *authenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fail(StageMalformed, fmt.Errorf("%w: empty token", ErrUnauthorized))
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(a.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithLeeway(a.cfg.Leeway),
	)
	parsed, err := parser.Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fail(parseStage(err), fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err))
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fail(StageMalformed, fmt.Errorf("%w: invalid claims type", ErrUnauthorized))
	}

	if a.cfg.Hook != nil {
		if err := a.cfg.Hook(claims); err != nil {
			return nil, fail(StagePolicy, err)
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fail(StageSubject, fmt.Errorf("%w: missing sub", ErrUnauthorized))
	}

	if a.cfg.Denylist != nil {
		for _, name := range []string{"jti", "origin_jti"} {
			id, _ := claims[name].(string)
			if id == "" {
				continue
			}
			revoked, err := a.cfg.Denylist.IsRevoked(ctx, id)
			if err != nil {
				return nil, fail(StageRevocation, fmt.Errorf("%w: denylist lookup: %v", ErrUnavailable, err))
			}
			if revoked {
				return nil, fail(StageRevocation, fmt.Errorf("%w: %w: %s", ErrUnauthorized, ErrRevoked, name))
			}
		}
	}

	return &userInfo{sub: sub, claims: claims}, nil
}

func parseStage(err error) Stage {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return StageMalformed
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return StageIssuer
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return StageExpiry
	}
	return StageSignature
}

// Ensure authenticator satisfies the shared contract.
var _ Authenticator = (*authenticator)(nil)
