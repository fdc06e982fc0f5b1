// Package auth gates HTTP requests on access tokens issued by an Amazon
// Cognito user pool.
//
// Two pieces make up the policy. At startup ResolveAuthority derives the
// expected token issuer from a user pool id and a region. Per request, after
// the validation pipeline has checked signature, issuer and expiry,
// EnforceAccessToken rejects any token whose token_use claim is not
// "access". Cognito signs ID, access and refresh tokens with the same keys
// and the same issuer, so without that check an ID token would pass as an
// API credential.
//
// # Authority
//
// The region is taken from, in order: AuthorityConfig.Region (the ambient
// cloud configuration), AWS_REGION, AWS_DEFAULT_REGION, then DefaultRegion.
// Set AuthorityConfig.RequireRegion to make the last step an error instead.
//
//	authority, err := auth.ResolveAuthority(auth.AuthorityConfig{
//	    UserPoolID: "us-east-2_AbCdEf123",
//	}, auth.OSEnv)
//	if err != nil { log.Fatal(err) } // errors.Is(err, auth.ErrConfiguration)
//	// authority.String() == "https://cognito-idp.us-east-2.amazonaws.com/us-east-2_AbCdEf123"
//
// # Authenticator
//
// NewFromAuthority fetches the pool's OpenID configuration, then validates
// tokens against its published keys (refreshed automatically):
//
//	authn, err := auth.NewFromAuthority(ctx, authority,
//	    auth.WithClientIDs("1example23456789"),
//	    auth.WithRequiredScopes("orders/read"),
//	)
//	ui, err := authn.CheckAuthentication(ctx, bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) { /* 401 invalid_token */ }
//	if errors.Is(err, auth.ErrInsufficientScope) { /* 403 insufficient_scope */ }
//
// SecurityConfigFor(authority).NewStaticAuthenticator skips discovery and
// reads keys straight from the pool's jwks.json.
//
// # Hooks
//
// EnforceAccessToken always runs first. Further TokenValidatedHook values
// (client id, scopes, groups, or custom ones via WithHooks) run in order and
// the first rejection wins. Hooks are pure functions of the Principal.
//
// # Errors
//
// ErrUnauthorized signals the token is invalid. ErrNotAccessToken and
// ErrRevoked refine it. ErrInsufficientScope signals a valid token lacking
// required scope or group. ErrUnavailable means no decision could be made
// and the request must be refused. ChallengeFor maps each to an HTTP
// challenge.
package auth
