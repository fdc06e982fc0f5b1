package auth

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultRegion is used when neither the ambient configuration nor the
// environment names a region.
const DefaultRegion = "us-east-2"

// Environment variables consulted for the region, in order.
const (
	EnvRegion        = "AWS_REGION"
	EnvDefaultRegion = "AWS_DEFAULT_REGION"
)

// Partition groups regions that share a DNS suffix.
type Partition string

const (
	PartitionAWS      Partition = "aws"
	PartitionAWSChina Partition = "aws-cn"
	PartitionAWSGov   Partition = "aws-us-gov"
)

// DNSSuffix returns the service endpoint suffix for the partition.
func (p Partition) DNSSuffix() string {
	if p == PartitionAWSChina {
		return "amazonaws.com.cn"
	}
	return "amazonaws.com"
}

// Region is a resolved AWS region.
type Region struct {
	SystemName string
	Partition  Partition
}

// IssuerHost returns the Cognito user pool token issuer host for the region.
func (r Region) IssuerHost() string {
	return "cognito-idp." + r.SystemName + "." + r.Partition.DNSSuffix()
}

func (r Region) String() string { return r.SystemName }

var knownRegions = map[string]Partition{
	"af-south-1":     PartitionAWS,
	"ap-east-1":      PartitionAWS,
	"ap-northeast-1": PartitionAWS,
	"ap-northeast-2": PartitionAWS,
	"ap-northeast-3": PartitionAWS,
	"ap-south-1":     PartitionAWS,
	"ap-south-2":     PartitionAWS,
	"ap-southeast-1": PartitionAWS,
	"ap-southeast-2": PartitionAWS,
	"ap-southeast-3": PartitionAWS,
	"ap-southeast-4": PartitionAWS,
	"ca-central-1":   PartitionAWS,
	"ca-west-1":      PartitionAWS,
	"eu-central-1":   PartitionAWS,
	"eu-central-2":   PartitionAWS,
	"eu-north-1":     PartitionAWS,
	"eu-south-1":     PartitionAWS,
	"eu-south-2":     PartitionAWS,
	"eu-west-1":      PartitionAWS,
	"eu-west-2":      PartitionAWS,
	"eu-west-3":      PartitionAWS,
	"il-central-1":   PartitionAWS,
	"me-central-1":   PartitionAWS,
	"me-south-1":     PartitionAWS,
	"sa-east-1":      PartitionAWS,
	"us-east-1":      PartitionAWS,
	"us-east-2":      PartitionAWS,
	"us-west-1":      PartitionAWS,
	"us-west-2":      PartitionAWS,
	"cn-north-1":     PartitionAWSChina,
	"cn-northwest-1": PartitionAWSChina,
	"us-gov-east-1":  PartitionAWSGov,
	"us-gov-west-1":  PartitionAWSGov,
}

// regionPattern accepts well-formed names that are not in the table yet
// (e.g. "mx-central-1"), so a new region does not require a release.
var regionPattern = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-[0-9]+$`)

// LookupRegion resolves a region system name. Unknown but well-formed names
// are accepted with a partition inferred from their prefix.
func LookupRegion(name string) (Region, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if p, ok := knownRegions[name]; ok {
		return Region{SystemName: name, Partition: p}, nil
	}
	if !regionPattern.MatchString(name) {
		return Region{}, &ConfigError{Field: "region", Reason: fmt.Sprintf("%q is not a known region", name)}
	}
	p := PartitionAWS
	switch {
	case strings.HasPrefix(name, "cn-"):
		p = PartitionAWSChina
	case strings.HasPrefix(name, "us-gov-"):
		p = PartitionAWSGov
	}
	return Region{SystemName: name, Partition: p}, nil
}

// RegionSource records where a resolved region came from.
type RegionSource string

const (
	RegionFromConfig     RegionSource = "config"
	RegionFromEnv        RegionSource = EnvRegion
	RegionFromEnvDefault RegionSource = EnvDefaultRegion
	RegionFromFallback   RegionSource = "default"
)

// EnvLookup reads a single environment variable.
type EnvLookup func(key string) (string, bool)

// ResolveRegion picks the first non-blank region from the ambient
// configuration, AWS_REGION, then AWS_DEFAULT_REGION. When none is set it
// falls back to DefaultRegion unless requireRegion is true.
func ResolveRegion(ambient string, env EnvLookup, requireRegion bool) (Region, RegionSource, error) {
	type candidate struct {
		value  string
		source RegionSource
	}
	cands := []candidate{{ambient, RegionFromConfig}}
	if env != nil {
		for _, key := range []string{EnvRegion, EnvDefaultRegion} {
			if v, ok := env(key); ok {
				cands = append(cands, candidate{v, RegionSource(key)})
			}
		}
	}
	for _, c := range cands {
		if strings.TrimSpace(c.value) == "" {
			continue
		}
		r, err := LookupRegion(c.value)
		if err != nil {
			return Region{}, "", fmt.Errorf("region from %s: %w", c.source, err)
		}
		return r, c.source, nil
	}
	if requireRegion {
		return Region{}, "", &ConfigError{Field: "region", Reason: "no region configured and fallback disabled"}
	}
	r, _ := LookupRegion(DefaultRegion)
	return r, RegionFromFallback, nil
}
