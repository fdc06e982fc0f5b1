package auth

import (
	"errors"
	"net/url"
	"strings"
	"testing"
)

func mapEnv(m map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestResolveRegion_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		ambient    string
		env        map[string]string
		wantRegion string
		wantSource RegionSource
	}{
		{
			name:       "ambient wins over environment",
			ambient:    "ap-southeast-2",
			env:        map[string]string{EnvRegion: "eu-west-1", EnvDefaultRegion: "us-west-1"},
			wantRegion: "ap-southeast-2",
			wantSource: RegionFromConfig,
		},
		{
			name:       "primary env wins over secondary",
			env:        map[string]string{EnvRegion: "eu-west-1", EnvDefaultRegion: "us-west-1"},
			wantRegion: "eu-west-1",
			wantSource: RegionFromEnv,
		},
		{
			name:       "secondary env used when primary unset",
			env:        map[string]string{EnvDefaultRegion: "us-west-1"},
			wantRegion: "us-west-1",
			wantSource: RegionFromEnvDefault,
		},
		{
			name:       "blank values count as absent",
			ambient:    "  ",
			env:        map[string]string{EnvRegion: "", EnvDefaultRegion: "us-west-1"},
			wantRegion: "us-west-1",
			wantSource: RegionFromEnvDefault,
		},
		{
			name:       "fallback when nothing set",
			env:        map[string]string{},
			wantRegion: DefaultRegion,
			wantSource: RegionFromFallback,
		},
		{
			name:       "names are normalized",
			ambient:    " EU-CENTRAL-1 ",
			wantRegion: "eu-central-1",
			wantSource: RegionFromConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, src, err := ResolveRegion(tt.ambient, mapEnv(tt.env), false)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if r.SystemName != tt.wantRegion {
				t.Errorf("region = %q, want %q", r.SystemName, tt.wantRegion)
			}
			if src != tt.wantSource {
				t.Errorf("source = %q, want %q", src, tt.wantSource)
			}
		})
	}
}

func TestResolveRegion_NilEnv(t *testing.T) {
	r, src, err := ResolveRegion("", nil, false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.SystemName != DefaultRegion || src != RegionFromFallback {
		t.Fatalf("got %s from %s, want fallback", r, src)
	}
}

func TestResolveRegion_RequireRegion(t *testing.T) {
	_, _, err := ResolveRegion("", mapEnv(nil), true)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
	if _, _, err := ResolveRegion("", mapEnv(map[string]string{EnvRegion: "us-west-2"}), true); err != nil {
		t.Fatalf("env region should satisfy requirement: %v", err)
	}
}

func TestResolveRegion_Unknown(t *testing.T) {
	for _, name := range []string{"mars-1", "us_east_1", "eu-west", "https://x"} {
		t.Run(name, func(t *testing.T) {
			_, _, err := ResolveRegion("", mapEnv(map[string]string{EnvRegion: name}), false)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("want ErrConfiguration, got %v", err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) || ce.Field != "region" {
				t.Fatalf("want ConfigError on region, got %#v", err)
			}
		})
	}
}

func TestLookupRegion_Partitions(t *testing.T) {
	tests := []struct {
		name     string
		wantPart Partition
		wantHost string
	}{
		{"us-east-2", PartitionAWS, "cognito-idp.us-east-2.amazonaws.com"},
		{"cn-north-1", PartitionAWSChina, "cognito-idp.cn-north-1.amazonaws.com.cn"},
		{"us-gov-west-1", PartitionAWSGov, "cognito-idp.us-gov-west-1.amazonaws.com"},
		{"mx-central-1", PartitionAWS, "cognito-idp.mx-central-1.amazonaws.com"},
		{"cn-south-9", PartitionAWSChina, "cognito-idp.cn-south-9.amazonaws.com.cn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := LookupRegion(tt.name)
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if r.Partition != tt.wantPart {
				t.Errorf("partition = %q, want %q", r.Partition, tt.wantPart)
			}
			if got := r.IssuerHost(); got != tt.wantHost {
				t.Errorf("host = %q, want %q", got, tt.wantHost)
			}
		})
	}
}

func TestResolveAuthority(t *testing.T) {
	a, err := ResolveAuthority(AuthorityConfig{UserPoolID: "pool123"}, mapEnv(nil))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := "https://cognito-idp.us-east-2.amazonaws.com/pool123"
	if a.String() != want || a.Issuer() != want {
		t.Fatalf("authority = %q, want %q", a.String(), want)
	}
	if a.JWKSURL() != want+"/.well-known/jwks.json" {
		t.Errorf("jwks = %q", a.JWKSURL())
	}
	if a.DiscoveryURL() != want+"/.well-known/openid-configuration" {
		t.Errorf("discovery = %q", a.DiscoveryURL())
	}
	if a.UserPoolID() != "pool123" || a.Region().SystemName != "us-east-2" || a.RegionSource() != RegionFromFallback {
		t.Errorf("unexpected parts: %+v", a)
	}
	if _, err := url.Parse(a.String()); err != nil {
		t.Errorf("authority not a URL: %v", err)
	}
}

func TestResolveAuthority_TemplatePositions(t *testing.T) {
	regions := []string{"us-east-1", "eu-west-1", "ap-northeast-3", "sa-east-1"}
	pools := []string{"pool123", "eu-west-1_AbCdEf123", "TestPool"}
	for _, region := range regions {
		for _, pool := range pools {
			a, err := ResolveAuthority(AuthorityConfig{UserPoolID: pool, Region: region}, nil)
			if err != nil {
				t.Fatalf("%s/%s: %v", region, pool, err)
			}
			u, err := url.Parse(a.String())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if u.Scheme != "https" {
				t.Errorf("scheme = %q", u.Scheme)
			}
			if got := strings.Split(u.Host, ".")[1]; got != region {
				t.Errorf("host region = %q, want %q", got, region)
			}
			if u.Path != "/"+pool {
				t.Errorf("path = %q, want /%s", u.Path, pool)
			}
		}
	}
}

func TestResolveAuthority_InvalidPool(t *testing.T) {
	for _, pool := range []string{"", "   ", "a/b", "pool?x", "pool#frag", "has space"} {
		t.Run(pool, func(t *testing.T) {
			a, err := ResolveAuthority(AuthorityConfig{UserPoolID: pool, Region: "us-east-1"}, nil)
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("want ErrConfiguration, got %v", err)
			}
			if !a.IsZero() {
				t.Fatalf("want zero authority, got %q", a.String())
			}
		})
	}
}

func TestResolveAuthority_InvalidRegion(t *testing.T) {
	_, err := ResolveAuthority(AuthorityConfig{UserPoolID: "pool123", Region: "nowhere"}, nil)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}

func TestAuthority_PoolRegionMismatch(t *testing.T) {
	tests := []struct {
		pool   string
		region string
		want   bool
	}{
		{"us-east-2_AbC", "us-east-2", false},
		{"eu-west-1_AbC", "us-east-2", true},
		{"pool123", "us-east-2", false},
		{"not-a-region_x", "us-east-2", false},
	}
	for _, tt := range tests {
		a, err := ResolveAuthority(AuthorityConfig{UserPoolID: tt.pool, Region: tt.region}, nil)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got := a.PoolRegionMismatch(); got != tt.want {
			t.Errorf("%s in %s: mismatch = %v, want %v", tt.pool, tt.region, got, tt.want)
		}
	}
}
