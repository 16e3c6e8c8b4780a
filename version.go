package one

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the current module version.
//
// This version follows semantic versioning (https://semver.org/).
const Version = "0.1.0"

// APIVersion is the OpenNebula release this client was written against.
const APIVersion = "6.10.0"

// APIVersionRange is the range of server releases the client is known to
// work with, as a semver constraint.
const APIVersionRange = ">= 5.4.0, < 8.0.0"

var apiConstraint = mustConstraint(APIVersionRange)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(fmt.Sprintf("invalid version constraint %q: %v", s, err))
	}
	return c
}

// IsCompatible reports whether a server version, as returned by
// system.version, falls within [APIVersionRange].
//
// OpenNebula maintenance releases have four components ("5.12.0.4"); only
// the first three are considered.
func IsCompatible(version string) bool {
	v, err := parseServerVersion(version)
	if err != nil {
		return false
	}
	return apiConstraint.Check(v)
}

func parseServerVersion(version string) (*semver.Version, error) {
	version = strings.TrimSpace(version)
	if parts := strings.Split(version, "."); len(parts) > 3 {
		version = strings.Join(parts[:3], ".")
	}
	return semver.NewVersion(version)
}

// SystemVersion returns the server version string.
func (c *Client) SystemVersion(ctx context.Context) (string, error) {
	return c.CallString(ctx, "system.version")
}

// CheckCompatibility queries the server version and fails with a generic
// error when it is outside [APIVersionRange].
func (c *Client) CheckCompatibility(ctx context.Context) error {
	version, err := c.SystemVersion(ctx)
	if err != nil {
		return err
	}
	if !IsCompatible(version) {
		return &Error{
			Kind:    KindGeneric,
			Method:  c.namespace + ".system.version",
			Message: fmt.Sprintf("server version %q is outside %s", version, APIVersionRange),
		}
	}
	return nil
}
