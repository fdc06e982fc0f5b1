package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the request and principal attached to the
// context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("path", rd.Path),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("user_agent", rd.UserAgent),
		))
	}

	if pd, ok := ctx.Value(principalDataKey{}).(*PrincipalData); ok {
		r.AddAttrs(slog.Group("principal",
			slog.String("sub", pd.Subject),
			slog.String("client_id", pd.ClientID),
			slog.String("username", pd.Username),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	UserAgent  string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

// RequestID returns the id of the request attached to ctx, if any.
func RequestID(ctx context.Context) string {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd.RequestID
	}
	return ""
}

type principalDataKey struct{}

// PrincipalData identifies the caller once a token has been accepted. It
// never carries the token itself.
type PrincipalData struct {
	Subject  string
	ClientID string
	Username string
}

func WithPrincipalData(ctx context.Context, data *PrincipalData) context.Context {
	return context.WithValue(ctx, principalDataKey{}, data)
}
