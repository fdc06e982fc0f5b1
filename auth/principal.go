package auth

import (
	"encoding/json"
	"maps"
	"strings"
)

// Claim names used by Cognito user pool tokens.
const (
	ClaimTokenUse  = "token_use"
	ClaimSubject   = "sub"
	ClaimClientID  = "client_id"
	ClaimUsername  = "username"
	ClaimScope     = "scope"
	ClaimGroups    = "cognito:groups"
	ClaimJTI       = "jti"
	ClaimOriginJTI = "origin_jti"

	claimCognitoUsername = "cognito:username"
)

// Principal is a read-only view over the claim set of a token whose
// signature, issuer and expiry have already been verified.
type Principal struct {
	claims map[string]any
}

// NewPrincipal copies claims into a Principal.
func NewPrincipal(claims map[string]any) Principal {
	return Principal{claims: maps.Clone(claims)}
}

// Claim returns the named claim when it is present and a string.
func (p Principal) Claim(name string) (string, bool) {
	v, ok := p.claims[name].(string)
	return v, ok
}

// Has reports whether the named claim is present, whatever its type.
func (p Principal) Has(name string) bool {
	_, ok := p.claims[name]
	return ok
}

func (p Principal) Subject() string {
	v, _ := p.Claim(ClaimSubject)
	return v
}

func (p Principal) ClientID() string {
	v, _ := p.Claim(ClaimClientID)
	return v
}

// Username returns "username" (access tokens) or "cognito:username" (ID tokens).
func (p Principal) Username() string {
	if v, ok := p.Claim(ClaimUsername); ok {
		return v
	}
	v, _ := p.Claim(claimCognitoUsername)
	return v
}

// Scopes splits the space-delimited scope claim.
func (p Principal) Scopes() []string {
	v, _ := p.Claim(ClaimScope)
	return strings.Fields(v)
}

// Groups returns the cognito:groups claim.
func (p Principal) Groups() []string {
	switch v := p.claims[ClaimGroups].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Decode unmarshals the claim set into ref.
func (p Principal) Decode(ref any) error {
	b, err := json.Marshal(p.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}
