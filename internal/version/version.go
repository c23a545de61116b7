// Package version wraps semantic versions with an optional trailing build
// number, matching how PaperMC identifies artifacts: a semver core
// (major.minor[.patch]) plus an integer build that is not part of semver
// proper and must be compared separately.
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a semver core plus an optional build number. Build is nil
// when the version string carried no build identifier — callers must not
// assume a zero value means "build 0".
type Version struct {
	core  *semver.Version
	Build *uint64
}

// Parse accepts "1.20.1", "1.20.1+196", or "1.20.1-196" and splits off the
// build suffix before handing the core to semver. PaperMC build numbers are
// plain integers, not semver build-metadata strings, so they're tracked on
// the side rather than left inside semver's Metadata field.
func Parse(s string) (Version, error) {
	core, build, err := splitBuild(s)
	if err != nil {
		return Version{}, err
	}
	sv, err := semver.NewVersion(core)
	if err != nil {
		return Version{}, fmt.Errorf("parse version %q: %w", s, err)
	}
	return Version{core: sv, Build: build}, nil
}

// WithBuild returns a copy of v pinned to the given build number.
func (v Version) WithBuild(build uint64) Version {
	b := build
	return Version{core: v.core, Build: &b}
}

func splitBuild(s string) (core string, build *uint64, err error) {
	for _, sep := range []string{"+", "-"} {
		if i := strings.Index(s, sep); i >= 0 {
			core = s[:i]
			var n uint64
			if _, scanErr := fmt.Sscanf(s[i+1:], "%d", &n); scanErr != nil {
				return "", nil, fmt.Errorf("parse build suffix in %q: %w", s, scanErr)
			}
			return core, &n, nil
		}
	}
	return s, nil, nil
}

func (v Version) String() string {
	if v.Build == nil {
		return v.core.String()
	}
	return fmt.Sprintf("%s+%d", v.core.String(), *v.Build)
}

// Core reports the major.minor.patch string with no build suffix, used to
// address the repository's per-line "MAJOR.MINOR[.PATCH]" build listings.
func (v Version) Core() string {
	return v.core.String()
}

// JarSuffix renders the string used in downloaded jar filenames, where '+'
// is replaced with '-' per the repository's artifact naming convention.
func (v Version) JarSuffix() string {
	return strings.ReplaceAll(v.String(), "+", "-")
}

// HasBuild reports whether a build identifier is present.
func (v Version) HasBuild() bool {
	return v.Build != nil
}

// Compare orders first by semver core, then by build number. An absent
// build compares as negative infinity — lower than any present build —
// rather than panicking the way the original unwrap()-based comparison
// did when one side lacked a build identifier.
func (v Version) Compare(other Version) int {
	if c := v.core.Compare(other.core); c != 0 {
		return c
	}
	switch {
	case v.Build == nil && other.Build == nil:
		return 0
	case v.Build == nil:
		return -1
	case other.Build == nil:
		return 1
	case *v.Build < *other.Build:
		return -1
	case *v.Build > *other.Build:
		return 1
	default:
		return 0
	}
}

// Dominates reports whether v is greater than or equal to other on both
// the core version and the build number — the "already up to date" test.
func (v Version) Dominates(other Version) bool {
	if v.core.Compare(other.core) < 0 {
		return false
	}
	return buildOrMinusInf(v.Build) >= buildOrMinusInf(other.Build)
}

func buildOrMinusInf(b *uint64) int64 {
	if b == nil {
		return -1
	}
	return int64(*b)
}

// Max returns the highest version in vs, or the zero Version and false if
// vs is empty.
func Max(vs []Version) (Version, bool) {
	if len(vs) == 0 {
		return Version{}, false
	}
	best := vs[0]
	for _, v := range vs[1:] {
		if v.Compare(best) > 0 {
			best = v
		}
	}
	return best, true
}
