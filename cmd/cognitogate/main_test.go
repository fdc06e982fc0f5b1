package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggoodman/cognito-auth-go/auth"
	"github.com/ggoodman/cognito-auth-go/auth/authtest"
	"github.com/ggoodman/cognito-auth-go/config"
	"github.com/prometheus/client_golang/prometheus"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"AWS_REGION", "AWS_DEFAULT_REGION", "COGNITO_USER_POOL_ID", "COGNITO_APP_CLIENT_IDS", "REDIS_ADDR", "LISTEN_ADDR", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestAuthorityCommand(t *testing.T) {
	clearEnv(t)
	out, _, err := run(t, "authority", "--user-pool-id", "pool123")
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	if !strings.Contains(out, "https://cognito-idp.us-east-2.amazonaws.com/pool123") {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(out, "(from default)") {
		t.Fatalf("region source missing: %q", out)
	}
}

func TestAuthorityCommand_JSONFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("COGNITO_USER_POOL_ID", "us-east-1_Mismatch")

	out, errOut, err := run(t, "authority", "--json")
	if err != nil {
		t.Fatalf("authority: %v", err)
	}
	var rep authorityReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if rep.Authority != "https://cognito-idp.eu-west-1.amazonaws.com/us-east-1_Mismatch" || rep.RegionSource != "AWS_REGION" {
		t.Fatalf("report = %+v", rep)
	}
	if !rep.Mismatch {
		t.Fatal("expected pool/region mismatch to be reported")
	}
	if errOut != "" {
		t.Fatalf("JSON mode wrote to stderr: %q", errOut)
	}
}

func TestAuthorityCommand_MissingPool(t *testing.T) {
	clearEnv(t)
	_, _, err := run(t, "authority")
	if !errors.Is(err, auth.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}

func TestConfigSchemaCommand(t *testing.T) {
	out, _, err := run(t, "config", "schema")
	if err != nil {
		t.Fatalf("config schema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	props, _ := doc["properties"].(map[string]any)
	if _, ok := props["aws"]; !ok {
		t.Fatalf("schema properties = %v", props)
	}
}

func TestConfigPrintCommand(t *testing.T) {
	clearEnv(t)
	out, _, err := run(t, "config", "print", "--user-pool-id", "pool123", "--listen", "127.0.0.1:9999")
	if err != nil {
		t.Fatalf("config print: %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.AWS.Cognito.UserPoolID != "pool123" || cfg.Server.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestRevokeCommand_RequiresRedis(t *testing.T) {
	clearEnv(t)
	_, _, err := run(t, "revoke", "--user-pool-id", "pool123", "some-id")
	if err == nil || !strings.Contains(err.Error(), "revocation.backend=redis") {
		t.Fatalf("want backend error, got %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	s, err := openStore(context.Background(), config.Revocation{Backend: "none"})
	if err != nil || s != nil {
		t.Fatalf("none = %v, %v", s, err)
	}
	s, err = openStore(context.Background(), config.Revocation{Backend: "memory", MaxEntries: 10})
	if err != nil || s == nil {
		t.Fatalf("memory = %v, %v", s, err)
	}
	defer s.Close()

	var buf bytes.Buffer
	cmd := newRevokeCmd()
	cmd.SetOut(&buf)
	if err := revokeAll(context.Background(), s, []string{"a", "b"}, time.Now().Add(time.Hour), cmd); err != nil {
		t.Fatalf("revokeAll: %v", err)
	}
	if revoked, _ := s.IsRevoked(context.Background(), "b"); !revoked {
		t.Fatal("id not revoked")
	}
	if strings.Count(buf.String(), "revoked ") != 2 {
		t.Fatalf("output = %q", buf.String())
	}
}

func newTestHandler(t *testing.T, cfg config.Config, opts ...auth.AccessTokenAuthOption) (*httptest.Server, *authtest.Issuer) {
	t.Helper()
	iss := authtest.NewIssuer(t, "us-east-2_TestPool")
	authn, err := auth.NewFromIssuer(context.Background(), iss.URL(), opts...)
	if err != nil {
		t.Fatalf("NewFromIssuer: %v", err)
	}
	h, err := newHandler(cfg, authn, prometheus.NewRegistry(), newLogger("error", io.Discard))
	if err != nil {
		t.Fatalf("newHandler: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, iss
}

func get(t *testing.T, url string, hdr map[string]string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestHandler(t *testing.T) {
	srv, iss := newTestHandler(t, config.Config{Auth: config.Auth{Realm: "demo"}})

	if resp, _ := get(t, srv.URL+"/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	resp, _ := get(t, srv.URL+"/orders", nil)
	if resp.StatusCode != http.StatusUnauthorized || resp.Header.Get("WWW-Authenticate") != `Bearer realm="demo"` {
		t.Fatalf("unauthenticated = %d %q", resp.StatusCode, resp.Header.Get("WWW-Authenticate"))
	}

	tok := iss.AccessToken(t, map[string]any{"scope": "orders/read orders/write"})
	resp, body := get(t, srv.URL+"/orders", map[string]string{"Authorization": authtest.BearerHeader(tok)})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated = %d %s", resp.StatusCode, body)
	}
	var pv principalView
	if err := json.Unmarshal([]byte(body), &pv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pv.Subject == "" || pv.ClientID != iss.ClientID || len(pv.Scopes) != 2 {
		t.Fatalf("principal = %+v", pv)
	}

	resp, _ = get(t, srv.URL+"/orders", map[string]string{"Authorization": authtest.BearerHeader(iss.IDToken(t, nil))})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("id token = %d", resp.StatusCode)
	}

	_, metricsBody := get(t, srv.URL+"/metrics", nil)
	if !strings.Contains(metricsBody, `cognitogate_authentications_total{reason="token_use",result="rejected"} 1`) {
		t.Fatalf("metrics missing token_use rejection:\n%s", metricsBody)
	}
}

func TestHandler_ProtectedResourceMetadata(t *testing.T) {
	srv, iss := newTestHandler(t, config.Config{Auth: config.Auth{RequiredScopes: []string{"orders/read"}}})

	resp, body := get(t, srv.URL+"/.well-known/oauth-protected-resource", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var md struct {
		Resource             string   `json:"resource"`
		AuthorizationServers []string `json:"authorization_servers"`
		JwksURI              string   `json:"jwks_uri"`
		ScopesSupported      []string `json:"scopes_supported"`
	}
	if err := json.Unmarshal([]byte(body), &md); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if md.Resource != srv.URL || len(md.AuthorizationServers) != 1 || md.AuthorizationServers[0] != iss.URL() {
		t.Fatalf("metadata = %+v", md)
	}
	if md.JwksURI != iss.JWKSURL() || len(md.ScopesSupported) != 1 {
		t.Fatalf("metadata = %+v", md)
	}
}

func TestSeedStore(t *testing.T) {
	ctx := context.Background()
	rc := config.Revocation{Backend: "memory", MaxEntries: 10, DenyIDs: []string{"origin-1"}, DenyTTL: time.Hour}
	store, err := openStore(ctx, rc)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	var logs bytes.Buffer
	if err := seedStore(ctx, store, rc, newLogger("info", &logs)); err != nil {
		t.Fatalf("seedStore: %v", err)
	}
	if !strings.Contains(logs.String(), "revocation.seeded") {
		t.Fatalf("logs = %q", logs.String())
	}

	srv, iss := newTestHandler(t, config.Config{}, auth.WithDenylist(store))
	tok := iss.AccessToken(t, map[string]any{"origin_jti": "origin-1"})
	resp, _ := get(t, srv.URL+"/orders", map[string]string{"Authorization": authtest.BearerHeader(tok)})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("seeded origin_jti status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("WWW-Authenticate"), "token revoked") {
		t.Fatalf("challenge = %q", resp.Header.Get("WWW-Authenticate"))
	}

	resp, _ = get(t, srv.URL+"/orders", map[string]string{"Authorization": authtest.BearerHeader(iss.AccessToken(t, nil))})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unrelated token status = %d", resp.StatusCode)
	}
}

func TestSeedStore_WarnsOnEmptyMemory(t *testing.T) {
	ctx := context.Background()
	rc := config.Revocation{Backend: "memory", MaxEntries: 10, DenyTTL: time.Hour}
	store, err := openStore(ctx, rc)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()

	var logs bytes.Buffer
	if err := seedStore(ctx, store, rc, newLogger("info", &logs)); err != nil {
		t.Fatalf("seedStore: %v", err)
	}
	if !strings.Contains(logs.String(), "revocation.memory.empty") {
		t.Fatalf("logs = %q", logs.String())
	}
	if err := seedStore(ctx, nil, config.Revocation{}, newLogger("info", &logs)); err != nil {
		t.Fatalf("nil store: %v", err)
	}
}

func TestHandler_CORS(t *testing.T) {
	srv, _ := newTestHandler(t, config.Config{Server: config.Server{CORSOrigins: []string{"https://app.example.com"}}})

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/orders", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}

	resp, _ = get(t, srv.URL+"/orders", map[string]string{"Origin": "https://app.example.com"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("CORS must not bypass the gate, status = %d", resp.StatusCode)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger("warn", &buf)
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("log output = %q", buf.String())
	}
}
