package wire

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ParseMinVersion validates s as a semver string (e.g. "v1.0.0") and
// extracts its major component as a wire protocol version number, the same
// semver.IsValid guard api0 applies to API0_MinimumLauncherVersion before
// comparing it against a reported client version. HELLO versions are raw
// uint16s rather than semver strings, so the comparison itself is plain
// integer intersection (see versionsIntersect in dispatch.go); semver only
// buys a friendlier, typo-resistant config syntax for operators ("v2.0.0"
// instead of the bare number 2). An empty s means "no minimum" (0).
func ParseMinVersion(s string) (uint16, error) {
	if s == "" {
		return 0, nil
	}
	if !semver.IsValid(s) {
		return 0, fmt.Errorf("wire: invalid min version %q", s)
	}
	major := strings.TrimPrefix(semver.Major(s), "v")
	n, err := strconv.ParseUint(major, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("wire: min version %q major component out of range: %w", s, err)
	}
	return uint16(n), nil
}
