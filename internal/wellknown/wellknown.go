// Package wellknown serves OAuth 2.0 protected resource metadata (RFC 9728)
// naming the user pool as the resource's authorization server.
package wellknown

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Path is where the metadata document is served.
const Path = "/.well-known/oauth-protected-resource"

type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	JwksURI                string   `json:"jwks_uri,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// Source describes the authority that protects a resource.
type Source struct {
	Issuer  string
	JWKSURL string
	Scopes  []string
	Name    string

	// TrustForwarded takes the resource origin from X-Forwarded-Proto and
	// X-Forwarded-Host. Enable only behind a proxy that overwrites them.
	TrustForwarded bool
}

// Handler serves the metadata document. The resource identifier is the
// origin the request arrived on.
func Handler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		md := ProtectedResourceMetadata{
			Resource:               ResourceURL(r, src.TrustForwarded),
			AuthorizationServers:   []string{src.Issuer},
			JwksURI:                src.JWKSURL,
			ScopesSupported:        src.Scopes,
			BearerMethodsSupported: []string{"header"},
			ResourceName:           src.Name,
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(md)
	})
}

// ResourceURL is the scheme and host the client used to reach r. Forwarded
// headers are consulted only when trustForwarded is set.
func ResourceURL(r *http.Request, trustForwarded bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if trustForwarded {
		if p := firstValue(r.Header.Get("X-Forwarded-Proto")); p == "http" || p == "https" {
			scheme = p
		}
		if h := firstValue(r.Header.Get("X-Forwarded-Host")); h != "" {
			host = h
		}
	}
	return scheme + "://" + host
}

func firstValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
