// Package config loads the gate's configuration from an optional file,
// the process environment and command-line flags, in increasing order of
// precedence. The environment is read once, during Load.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/cognito-auth-go/auth"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joeshaw/envdecode"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the resolved configuration. Treat it as immutable after Load.
type Config struct {
	AWS        AWS        `mapstructure:"aws" json:"aws"`
	Auth       Auth       `mapstructure:"auth" json:"auth,omitempty"`
	Server     Server     `mapstructure:"server" json:"server,omitempty"`
	Revocation Revocation `mapstructure:"revocation" json:"revocation,omitempty"`
	Log        Log        `mapstructure:"log" json:"log,omitempty"`

	// Env is the environment snapshot taken by Load.
	Env Env `mapstructure:"-" json:"-"`
}

type AWS struct {
	// Region is the ambient region. Empty defers to AWS_REGION, then
	// AWS_DEFAULT_REGION, then the built-in fallback.
	Region        string  `mapstructure:"region" json:"region,omitempty" validate:"omitempty,aws_region" jsonschema:"description=Ambient AWS region; overrides AWS_REGION and AWS_DEFAULT_REGION"`
	RequireRegion bool    `mapstructure:"require_region" json:"require_region,omitempty" jsonschema:"description=Fail instead of falling back to us-east-2"`
	Cognito       Cognito `mapstructure:"cognito" json:"cognito"`
}

type Cognito struct {
	UserPoolID   string   `mapstructure:"user_pool_id" json:"user_pool_id" validate:"required" jsonschema:"description=Cognito user pool id, e.g. us-east-2_AbCdEf123"`
	AppClientIDs []string `mapstructure:"app_client_ids" json:"app_client_ids,omitempty" validate:"dive,required" jsonschema:"description=Accepted client_id values; empty accepts any app client"`
}

type Auth struct {
	// Discovery fetches the pool's OpenID configuration at startup. When
	// false the JWKS URL is derived from the authority directly.
	Discovery      bool          `mapstructure:"discovery" json:"discovery,omitempty"`
	Realm          string        `mapstructure:"realm" json:"realm,omitempty"`
	Leeway         time.Duration `mapstructure:"leeway" json:"leeway,omitempty" validate:"gte=0,lte=5m"`
	AllowedAlgs    []string      `mapstructure:"allowed_algs" json:"allowed_algs,omitempty" validate:"dive,oneof=RS256 RS384 RS512 ES256 ES384 ES512 PS256 PS384 PS512"`
	RequiredScopes []string      `mapstructure:"required_scopes" json:"required_scopes,omitempty" validate:"dive,required"`
	AnyScopes      []string      `mapstructure:"any_scopes" json:"any_scopes,omitempty" validate:"dive,required"`
	RequiredGroups []string      `mapstructure:"required_groups" json:"required_groups,omitempty" validate:"dive,required"`
}

type Server struct {
	ListenAddr      string        `mapstructure:"listen_addr" json:"listen_addr,omitempty" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout,omitempty" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins" json:"cors_origins,omitempty"`

	// TrustProxyHeaders lets X-Forwarded-Proto and X-Forwarded-Host set the
	// advertised resource origin. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers" json:"trust_proxy_headers,omitempty"`
}

type Revocation struct {
	Backend    string `mapstructure:"backend" json:"backend,omitempty" validate:"oneof=none memory redis" jsonschema:"enum=none,enum=memory,enum=redis"`
	MaxEntries int    `mapstructure:"max_entries" json:"max_entries,omitempty" validate:"gt=0"`
	RedisAddr  string `mapstructure:"redis_addr" json:"redis_addr,omitempty" validate:"required_if=Backend redis,omitempty,hostname_port"`
	KeyPrefix  string `mapstructure:"key_prefix" json:"key_prefix,omitempty"`

	// DenyIDs are jti or origin_jti values revoked when serve starts, each
	// for DenyTTL. This is how the memory backend is populated.
	DenyIDs []string      `mapstructure:"deny_ids" json:"deny_ids,omitempty" validate:"dive,required" jsonschema:"description=Token ids denied from startup; requires backend memory or redis"`
	DenyTTL time.Duration `mapstructure:"deny_ttl" json:"deny_ttl,omitempty" validate:"gt=0"`
}

type Log struct {
	Level string `mapstructure:"level" json:"level,omitempty" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Env is the subset of the process environment the gate reads.
type Env struct {
	AWSRegion        string `env:"AWS_REGION"`
	AWSDefaultRegion string `env:"AWS_DEFAULT_REGION"`
	UserPoolID       string `env:"COGNITO_USER_POOL_ID"`
	AppClientIDs     string `env:"COGNITO_APP_CLIENT_IDS"`
	RedisAddr        string `env:"REDIS_ADDR"`
	ListenAddr       string `env:"LISTEN_ADDR"`
	LogLevel         string `env:"LOG_LEVEL"`
}

// ReadEnv snapshots the process environment.
func ReadEnv() (Env, error) {
	var e Env
	if err := envdecode.Decode(&e); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Env{}, &auth.ConfigError{Field: "env", Reason: "cannot decode environment", Err: err}
	}
	return e, nil
}

// Lookup serves the snapshot as an auth.EnvLookup. Empty values report absent.
func (e Env) Lookup(key string) (string, bool) {
	var v string
	switch key {
	case auth.EnvRegion:
		v = e.AWSRegion
	case auth.EnvDefaultRegion:
		v = e.AWSDefaultRegion
	}
	return v, v != ""
}

// Flag names bound by RegisterFlags.
const (
	FlagConfig     = "config"
	FlagRegion     = "region"
	FlagUserPoolID = "user-pool-id"
	FlagClientIDs  = "client-id"
	FlagListenAddr = "listen"
	FlagLogLevel   = "log-level"
)

var flagKeys = map[string]string{
	FlagRegion:     "aws.region",
	FlagUserPoolID: "aws.cognito.user_pool_id",
	FlagClientIDs:  "aws.cognito.app_client_ids",
	FlagListenAddr: "server.listen_addr",
	FlagLogLevel:   "log.level",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "path to a configuration file (json, yaml or toml)")
	fs.String(FlagRegion, "", "AWS region of the user pool")
	fs.String(FlagUserPoolID, "", "Cognito user pool id")
	fs.StringSlice(FlagClientIDs, nil, "accepted app client id (repeatable)")
	fs.String(FlagListenAddr, "", "listen address")
	fs.String(FlagLogLevel, "", "log level: debug, info, warn or error")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.require_region", false)
	v.SetDefault("aws.cognito.user_pool_id", "")
	v.SetDefault("aws.cognito.app_client_ids", []string{})
	v.SetDefault("auth.discovery", true)
	v.SetDefault("auth.realm", "")
	v.SetDefault("auth.leeway", 60*time.Second)
	v.SetDefault("auth.allowed_algs", []string{"RS256"})
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.trust_proxy_headers", false)
	v.SetDefault("revocation.backend", "none")
	v.SetDefault("revocation.max_entries", 10000)
	v.SetDefault("revocation.redis_addr", "")
	v.SetDefault("revocation.key_prefix", "cognitogate:revoked:")
	v.SetDefault("revocation.deny_ids", []string{})
	v.SetDefault("revocation.deny_ttl", 30*24*time.Hour)
	v.SetDefault("log.level", "info")
}

// Load resolves the configuration. path may be empty; flags may be nil.
// Precedence: flags, then environment, then file, then defaults.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	env, err := ReadEnv()
	if err != nil {
		return Config{}, err
	}
	return load(path, flags, env)
}

func load(path string, flags *pflag.FlagSet, env Env) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &auth.ConfigError{Field: "file", Reason: fmt.Sprintf("cannot read %s", path), Err: err}
		}
	}

	if err := overlayEnv(v, env); err != nil {
		return Config{}, &auth.ConfigError{Field: "env", Reason: "cannot merge environment", Err: err}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, &auth.ConfigError{Field: key, Reason: "cannot bind flag", Err: err}
				}
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, &auth.ConfigError{Field: "file", Reason: "cannot decode configuration", Err: err}
	}
	cfg.Env = env
	cfg.normalize()

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overlayEnv merges the environment snapshot into the config layer, above
// file values and below flags.
func overlayEnv(v *viper.Viper, env Env) error {
	m := map[string]any{}
	if env.UserPoolID != "" {
		setPath(m, env.UserPoolID, "aws", "cognito", "user_pool_id")
	}
	if ids := splitList(env.AppClientIDs); len(ids) > 0 {
		setPath(m, ids, "aws", "cognito", "app_client_ids")
	}
	if env.RedisAddr != "" {
		setPath(m, env.RedisAddr, "revocation", "redis_addr")
	}
	if env.ListenAddr != "" {
		setPath(m, env.ListenAddr, "server", "listen_addr")
	}
	if env.LogLevel != "" {
		setPath(m, env.LogLevel, "log", "level")
	}
	if len(m) == 0 {
		return nil
	}
	return v.MergeConfigMap(m)
}

func setPath(m map[string]any, val any, path ...string) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = val
}

func (c *Config) normalize() {
	c.AWS.Region = strings.ToLower(strings.TrimSpace(c.AWS.Region))
	c.AWS.Cognito.UserPoolID = strings.TrimSpace(c.AWS.Cognito.UserPoolID)
	c.AWS.Cognito.AppClientIDs = trimAll(c.AWS.Cognito.AppClientIDs)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Revocation.Backend = strings.ToLower(strings.TrimSpace(c.Revocation.Backend))
	c.Revocation.DenyIDs = trimAll(c.Revocation.DenyIDs)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// AuthorityConfig returns the input to auth.ResolveAuthority.
func (c Config) AuthorityConfig() auth.AuthorityConfig {
	return auth.AuthorityConfig{
		UserPoolID:    c.AWS.Cognito.UserPoolID,
		Region:        c.AWS.Region,
		RequireRegion: c.AWS.RequireRegion,
	}
}

// Authority resolves the issuer using the environment snapshot.
func (c Config) Authority() (auth.Authority, error) {
	return auth.ResolveAuthority(c.AuthorityConfig(), c.Env.Lookup)
}

// AuthOptions translates the auth section into authenticator options.
func (c Config) AuthOptions() []auth.AccessTokenAuthOption {
	opts := []auth.AccessTokenAuthOption{auth.WithLeeway(c.Auth.Leeway)}
	if len(c.Auth.AllowedAlgs) > 0 {
		opts = append(opts, auth.WithAllowedAlgs(c.Auth.AllowedAlgs...))
	}
	if len(c.AWS.Cognito.AppClientIDs) > 0 {
		opts = append(opts, auth.WithClientIDs(c.AWS.Cognito.AppClientIDs...))
	}
	if len(c.Auth.RequiredScopes) > 0 {
		opts = append(opts, auth.WithRequiredScopes(c.Auth.RequiredScopes...))
	}
	if len(c.Auth.AnyScopes) > 0 {
		opts = append(opts, auth.WithAnyRequiredScope(c.Auth.AnyScopes...))
	}
	if len(c.Auth.RequiredGroups) > 0 {
		opts = append(opts, auth.WithRequiredGroups(c.Auth.RequiredGroups...))
	}
	return opts
}
