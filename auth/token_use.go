package auth

import (
	"fmt"
	"strings"
)

// TokenUseAccess is the token_use value Cognito puts on access tokens. ID
// and refresh tokens are signed with the same keys and carry the same
// issuer, so this claim is the only thing that tells them apart.
const TokenUseAccess = "access"

// Outcome is the decision of a TokenValidatedHook.
type Outcome struct {
	Accepted bool
	Reason   string
	cause    error
}

// Accept returns an accepting Outcome.
func Accept() Outcome { return Outcome{Accepted: true} }

// Reject returns a rejecting Outcome surfaced as ErrUnauthorized.
func Reject(reason string) Outcome {
	return Outcome{Reason: reason, cause: ErrUnauthorized}
}

// rejectWith returns a rejecting Outcome surfaced as cause.
func rejectWith(cause error, reason string) Outcome {
	return Outcome{Reason: reason, cause: cause}
}

// Err returns nil for an accepting Outcome and an error wrapping the
// rejection cause otherwise.
func (o Outcome) Err() error {
	if o.Accepted {
		return nil
	}
	cause := o.cause
	if cause == nil {
		cause = ErrUnauthorized
	}
	if o.Reason == "" || o.Reason == cause.Error() {
		return cause
	}
	return fmt.Errorf("%w: %s", cause, o.Reason)
}

// TokenValidatedHook inspects a Principal after the validation pipeline has
// verified signature, issuer and expiry. Hooks are called synchronously and
// concurrently; they must not block or mutate shared state.
type TokenValidatedHook func(Principal) Outcome

// EnforceAccessToken accepts p only when its token_use claim is "access",
// compared case-insensitively. A missing or non-string claim is rejected.
func EnforceAccessToken(p Principal) Outcome {
	use, ok := p.Claim(ClaimTokenUse)
	if !ok || !strings.EqualFold(use, TokenUseAccess) {
		return rejectWith(ErrNotAccessToken, ErrNotAccessToken.Error())
	}
	return Accept()
}

// RequireClientID accepts tokens minted for one of the given app clients.
func RequireClientID(ids ...string) TokenValidatedHook {
	want := toSet(ids)
	return func(p Principal) Outcome {
		if _, ok := want[p.ClientID()]; !ok {
			return Reject("client_id not allowed")
		}
		return Accept()
	}
}

// RequireScopes accepts tokens carrying every one of the given scopes.
func RequireScopes(scopes ...string) TokenValidatedHook {
	want := append([]string(nil), scopes...)
	return func(p Principal) Outcome {
		have := toSet(p.Scopes())
		for _, s := range want {
			if _, ok := have[s]; !ok {
				return rejectWith(ErrInsufficientScope, "missing scope "+s)
			}
		}
		return Accept()
	}
}

// RequireAnyScope accepts tokens carrying at least one of the given scopes.
func RequireAnyScope(scopes ...string) TokenValidatedHook {
	want := append([]string(nil), scopes...)
	return func(p Principal) Outcome {
		have := toSet(p.Scopes())
		for _, s := range want {
			if _, ok := have[s]; ok {
				return Accept()
			}
		}
		return rejectWith(ErrInsufficientScope, "none of the required scopes present")
	}
}

// RequireGroups accepts tokens whose cognito:groups include every given group.
func RequireGroups(groups ...string) TokenValidatedHook {
	want := append([]string(nil), groups...)
	return func(p Principal) Outcome {
		have := toSet(p.Groups())
		for _, g := range want {
			if _, ok := have[g]; !ok {
				return rejectWith(ErrInsufficientScope, "missing group "+g)
			}
		}
		return Accept()
	}
}

// chainHooks runs hooks in order and returns the first rejection.
func chainHooks(hooks []TokenValidatedHook) TokenValidatedHook {
	return func(p Principal) Outcome {
		for _, h := range hooks {
			if o := h(p); !o.Accepted {
				return o
			}
		}
		return Accept()
	}
}

func toSet(vals []string) map[string]struct{} {
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}
