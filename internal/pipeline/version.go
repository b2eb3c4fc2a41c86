package pipeline

import (
	"strings"

	"golang.org/x/mod/semver"
)

// NormalizeVersion trims surrounding whitespace. No other normalisation is
// applied: "1.0" and "1.0.0" are different versions.
func NormalizeVersion(v string) string {
	return strings.TrimSpace(v)
}

// VersionChanged reports whether remote differs textually from recorded.
// Any difference counts as an update, including an apparent downgrade.
func VersionChanged(recorded, remote string) bool {
	return NormalizeVersion(recorded) != NormalizeVersion(remote)
}

// IsDowngrade reports whether both versions parse as semantic versions and
// remote sorts before recorded. It is informational only.
func IsDowngrade(recorded, remote string) bool {
	r, ok := canonicalSemver(recorded)
	if !ok {
		return false
	}
	n, ok := canonicalSemver(remote)
	if !ok {
		return false
	}
	return semver.Compare(n, r) < 0
}

func canonicalSemver(v string) (string, bool) {
	norm := NormalizeVersion(v)
	if !strings.HasPrefix(norm, "v") {
		norm = "v" + norm
	}
	if !semver.IsValid(norm) {
		return "", false
	}
	return norm, true
}
