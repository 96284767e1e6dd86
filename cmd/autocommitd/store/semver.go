package store

import "golang.org/x/mod/semver"

// compareSemver orders two schema version strings using strict semver
// comparison rather than a naive string compare, so "v1.10.0" correctly
// sorts after "v1.9.0".
func compareSemver(a, b string) int {
	return semver.Compare(a, b)
}
