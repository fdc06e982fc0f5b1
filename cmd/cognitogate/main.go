// cognitogate is a reverse-proxy style demo service and operator tool for
// the Cognito access-token gate.
//
// Usage:
//
//	cognitogate serve --user-pool-id us-east-2_AbCdEf123
//	cognitogate authority --config gate.yaml
//	cognitogate config schema
//	cognitogate revoke <origin_jti> --ttl 720h
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
