// Package middleware gates net/http handlers on Cognito access tokens.
//
// Every request passing through Middleware.Handler must carry
// "Authorization: Bearer <token>" accepted by the configured
// auth.Authenticator. Anything else is answered with an RFC 6750 challenge
// and never reaches the wrapped handler.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/cognito-auth-go/auth"
	"github.com/ggoodman/cognito-auth-go/internal/logctx"
	"github.com/ggoodman/cognito-auth-go/internal/metrics"
	"github.com/google/uuid"
)

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
	requestIDHeader       = "X-Request-Id"

	maxRequestIDLen = 128
)

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	textMediaType  = contenttype.NewMediaType("text/plain")
	bodyMediaTypes = []contenttype.MediaType{jsonMediaType, textMediaType}
)

// Recorder receives one observation per token check.
type Recorder interface {
	ObserveAuthentication(result, reason string, d time.Duration)
}

// Option configures the Middleware.
type Option func(*Middleware)

// WithLogger sets the logger. Defaults to slog.Default(); nil keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges. Empty
// omits the attribute.
func WithRealm(realm string) Option {
	return func(m *Middleware) { m.realm = strings.TrimSpace(realm) }
}

// WithMetrics records each check with r.
func WithMetrics(r Recorder) Option {
	return func(m *Middleware) { m.metrics = r }
}

// Middleware enforces bearer authentication. Safe for concurrent use.
type Middleware struct {
	auth    auth.Authenticator
	log     *slog.Logger
	realm   string
	metrics Recorder
}

// New returns a Middleware backed by authn.
func New(authn auth.Authenticator, opts ...Option) (*Middleware, error) {
	if authn == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	m := &Middleware{auth: authn, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.log = slog.New(logctx.Handler{Handler: m.log.Handler()})
	return m, nil
}

type userInfoKey struct{}

// UserInfoFromContext returns the caller accepted by the middleware.
func UserInfoFromContext(ctx context.Context) (auth.UserInfo, bool) {
	ui, ok := ctx.Value(userInfoKey{}).(auth.UserInfo)
	return ui, ok
}

// Handler wraps next. Requests reach next only with an accepted token.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := requestID(r)
		w.Header().Set(requestIDHeader, reqID)
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  reqID,
			Method:     r.Method,
			Path:       r.URL.Path,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})

		ui := m.checkAuthentication(ctx, r, w)
		if ui == nil {
			return
		}

		p := ui.Principal()
		ctx = logctx.WithPrincipalData(ctx, &logctx.PrincipalData{
			Subject:  p.Subject(),
			ClientID: p.ClientID(),
			Username: p.Username(),
		})
		ctx = context.WithValue(ctx, userInfoKey{}, ui)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) auth.UserInfo {
	start := time.Now()

	values := r.Header.Values(authorizationHeader)
	if len(values) == 0 || (len(values) == 1 && strings.TrimSpace(values[0]) == "") {
		// RFC 6750 section 3.1: no error code when credentials are absent.
		m.log.InfoContext(ctx, "auth.check.missing")
		m.observe(metrics.ResultRejected, "missing", start)
		m.reject(w, r, auth.NewAuthenticationRequired(m.realm))
		return nil
	}

	tok, err := bearerToken(values)
	if err != nil {
		m.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", err.Error()))
		m.observe(metrics.ResultRejected, "malformed", start)
		m.reject(w, r, auth.NewInvalidRequest(m.realm, err.Error()))
		return nil
	}

	ui, err := m.auth.CheckAuthentication(ctx, tok)
	if err != nil {
		reason := auth.FailureReason(err)
		ch := auth.ChallengeFor(m.realm, err)
		if ch.Status == http.StatusInternalServerError {
			m.log.ErrorContext(ctx, "auth.check.err", slog.String("reason", reason), slog.String("err", err.Error()))
			m.observe(metrics.ResultError, reason, start)
		} else {
			m.log.InfoContext(ctx, "auth.check.fail", slog.String("reason", reason), slog.String("err", err.Error()))
			m.observe(metrics.ResultRejected, reason, start)
		}
		m.reject(w, r, ch)
		return nil
	}

	m.log.DebugContext(ctx, "auth.check.ok", slog.String("sub", ui.UserID()))
	m.observe(metrics.ResultAccepted, "", start)
	return ui
}

var (
	errMultipleHeaders = errors.New("multiple authorization headers")
	errNotBearer       = errors.New("authorization scheme must be Bearer")
	errEmptyToken      = errors.New("empty bearer token")
)

// bearerToken extracts the token from a single "Bearer <token>" value. The
// scheme is matched case-insensitively.
func bearerToken(values []string) (string, error) {
	if len(values) != 1 {
		return "", errMultipleHeaders
	}
	scheme, rest, _ := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", errNotBearer
	}
	tok := strings.TrimSpace(rest)
	if tok == "" {
		return "", errEmptyToken
	}
	if strings.ContainsAny(tok, " \t") {
		return "", errNotBearer
	}
	return tok, nil
}

func (m *Middleware) observe(result, reason string, start time.Time) {
	if m.metrics != nil {
		m.metrics.ObserveAuthentication(result, reason, time.Since(start))
	}
}

// reject writes ch with a body in the representation the client accepts,
// JSON when it expresses no usable preference.
func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, ch auth.AuthenticationChallenge) {
	if ch.WWWAuthenticate != "" {
		w.Header().Add(wwwAuthenticateHeader, ch.WWWAuthenticate)
	}
	msg := ch.Description
	if msg == "" {
		msg = http.StatusText(ch.Status)
	}

	mt, _, err := contenttype.GetAcceptableMediaType(r, bodyMediaTypes)
	if err == nil && mt.Type == textMediaType.Type && mt.Subtype == textMediaType.Subtype {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(ch.Status)
		_, _ = fmt.Fprintln(w, msg)
		return
	}

	body := map[string]any{"code": ch.Status, "message": msg}
	if ch.Code != "" {
		body["error"] = ch.Code
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(ch.Status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": body})
}

// requestID reuses a sane inbound X-Request-Id or mints a new one.
func requestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" || len(id) > maxRequestIDLen || strings.ContainsFunc(id, func(c rune) bool { return c < 0x21 || c > 0x7e }) {
		return uuid.NewString()
	}
	return id
}
