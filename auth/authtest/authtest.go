// Package authtest provides an in-process stand-in for a Cognito user pool:
// an HTTP server publishing the OpenID configuration and signing keys, and
// helpers that mint access, ID and refresh-shaped tokens signed by it.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is a fake user pool. Its issuer URL is the server URL followed by
// the pool id, matching the shape of a real Cognito authority.
type Issuer struct {
	Server   *httptest.Server
	PoolID   string
	ClientID string

	key *rsa.PrivateKey
	kid string
}

// NewIssuer starts a fake user pool. The server is closed via t.Cleanup.
func NewIssuer(t testing.TB, poolID string) *Issuer {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	iss := &Issuer{PoolID: poolID, ClientID: "test-client", key: pk, kid: "test-key"}

	jwks, err := json.Marshal(struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{{Key: &pk.PublicKey, KeyID: iss.kid, Algorithm: "RS256", Use: "sig"}}})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/"+poolID+"/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                iss.URL(),
			"jwks_uri":                              iss.JWKSURL(),
			"authorization_endpoint":                iss.Server.URL + "/oauth2/authorize",
			"token_endpoint":                        iss.Server.URL + "/oauth2/token",
			"userinfo_endpoint":                     iss.Server.URL + "/oauth2/userInfo",
			"response_types_supported":              []string{"code", "token"},
			"scopes_supported":                      []string{"openid", "email", "phone", "profile"},
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"subject_types_supported":               []string{"public"},
		})
	})
	mux.HandleFunc("/"+poolID+"/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	})
	iss.Server = httptest.NewServer(mux)
	t.Cleanup(iss.Server.Close)
	return iss
}

// URL is the issuer, i.e. the value of "iss" in tokens minted here.
func (i *Issuer) URL() string { return i.Server.URL + "/" + i.PoolID }

// JWKSURL is where the signing keys are published.
func (i *Issuer) JWKSURL() string { return i.URL() + "/.well-known/jwks.json" }

// Sign signs claims with the pool key. No defaults are added.
func (i *Issuer) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.kid
	s, err := tok.SignedString(i.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// AccessClaims returns the claim set of a fresh Cognito access token issued
// by i. Callers may mutate the result before signing.
func (i *Issuer) AccessClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":        i.URL(),
		"sub":        uuid.NewString(),
		"client_id":  i.ClientID,
		"origin_jti": uuid.NewString(),
		"event_id":   uuid.NewString(),
		"token_use":  "access",
		"scope":      "aws.cognito.signin.user.admin",
		"auth_time":  now.Unix(),
		"exp":        now.Add(time.Hour).Unix(),
		"iat":        now.Unix(),
		"jti":        uuid.NewString(),
		"username":   "test-user",
	}
}

// IDClaims returns the claim set of a fresh Cognito ID token issued by i.
func (i *Issuer) IDClaims() jwt.MapClaims {
	c := i.AccessClaims()
	delete(c, "client_id")
	delete(c, "scope")
	delete(c, "username")
	c["aud"] = i.ClientID
	c["token_use"] = "id"
	c["cognito:username"] = "test-user"
	c["email"] = "test@example.com"
	c["email_verified"] = true
	return c
}

// AccessToken mints a signed access token, applying overrides on top of
// AccessClaims. A nil override value deletes the claim.
func (i *Issuer) AccessToken(t testing.TB, overrides map[string]any) string {
	t.Helper()
	return i.Sign(t, apply(i.AccessClaims(), overrides))
}

// IDToken mints a signed ID token, applying overrides on top of IDClaims.
func (i *Issuer) IDToken(t testing.TB, overrides map[string]any) string {
	t.Helper()
	return i.Sign(t, apply(i.IDClaims(), overrides))
}

func apply(c jwt.MapClaims, overrides map[string]any) jwt.MapClaims {
	for k, v := range overrides {
		if v == nil {
			delete(c, k)
			continue
		}
		c[k] = v
	}
	return c
}

// BearerHeader formats tok as an Authorization header value.
func BearerHeader(tok string) string { return "Bearer " + strings.TrimSpace(tok) }
