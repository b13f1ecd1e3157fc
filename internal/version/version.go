// Package version compares upstream release tags with packaged versions.
package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Normalize strips the leading "v" from a release tag.
func Normalize(tag string) string {
	return strings.TrimLeft(strings.TrimSpace(tag), "v")
}

// canonical returns v in the "vX.Y.Z" form semver expects.
func canonical(v string) (string, error) {
	sv := "v" + Normalize(v)
	if !semver.IsValid(sv) {
		return "", fmt.Errorf("invalid version %q", v)
	}
	return sv, nil
}

// compare returns -1, 0 or +1 as a is older than, equal to or newer than b.
func compare(a, b string) (int, error) {
	ca, err := canonical(a)
	if err != nil {
		return 0, err
	}
	cb, err := canonical(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(ca, cb), nil
}

// ShouldUpdate reports whether latest is strictly newer than current.
// Malformed versions are an error, never "up to date".
func ShouldUpdate(current, latest string) (bool, error) {
	c, err := compare(latest, current)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
