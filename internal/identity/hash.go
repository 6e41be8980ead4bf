// Package identity computes deterministic, content-addressed identities for
// runner configurations and test specifications.
//
// An identity is the SHA-256 of a domain prefix, a NUL separator and the
// canonical JSON of the identified fields. Identical inputs therefore yield
// identical identities across runs and machines, which is what lets compiled
// artifacts and stored results be keyed by configuration.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes. The version suffix allows the hashed layout to change.
const (
	DomainConfig = "gauntlet/config/v1"
	DomainSpec   = "gauntlet/spec/v1"
)

// ShortLen is the identity prefix length used in artifact file names.
const ShortLen = 12

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash computes the identity of v under the given domain.
func Hash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("identity %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// Config computes the identity of a runner configuration.
func Config(fields map[string]any) (string, error) {
	return Hash(DomainConfig, fields)
}

// SpecInput holds the fields of a test specification that affect the
// produced binary.
type SpecInput struct {
	ConfigHash string
	Program    string
	Flags      []string
	Command    string
}

// Spec computes the identity of one compiled test configuration.
func Spec(in SpecInput) (string, error) {
	flags := in.Flags
	if flags == nil {
		flags = []string{}
	}
	return Hash(DomainSpec, map[string]any{
		"config":  in.ConfigHash,
		"program": in.Program,
		"flags":   flags,
		"command": in.Command,
	})
}

// Short returns the ShortLen-character prefix of an identity.
func Short(id string) string {
	if len(id) <= ShortLen {
		return id
	}
	return id[:ShortLen]
}
