package version

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrIncomparable is returned when either side is not a plain 3 or 4 segment numeric version
var ErrIncomparable = errors.New("versions are not comparable")

// NotInstalled is what callers display when no version could be determined
const NotInstalled = "Not installed"

var (
	// DefaultPattern matches the version printed by `eden --version`
	DefaultPattern = `v?(\d+\.\d+\.\d+(?:\.\d+)?)`

	numericVersion = regexp.MustCompile(`^\d+(\.\d+){2,3}$`)
	filenameTok    = regexp.MustCompile(`(?i)(?:^|[^0-9.])v?(\d+\.\d+\.\d+(?:\.\d+)?)(?:[^0-9]|$)`)
)

// Normalize removes common prefixes and suffixes from version strings
// Handles: v1.2.3 -> 1.2.3, release-1.2.3 -> 1.2.3, Eden-v0.0.3 -> 0.0.3
func Normalize(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return version
	}

	for _, prefix := range []string{"version-", "release-", "eden-", "v"} {
		if len(version) > len(prefix) && strings.EqualFold(version[:len(prefix)], prefix) {
			version = version[len(prefix):]
		}
	}

	// Strip a remaining name prefix if what follows looks like a version, e.g. "nightly-1.2.3"
	if idx := strings.IndexAny(version, "-_"); idx > 0 && !startsWithDigit(version) {
		if rest := strings.TrimLeft(version[idx+1:], "vV"); startsWithDigit(rest) {
			version = rest
		}
	}

	for _, suffix := range []string{"-release", "-stable"} {
		if len(version) > len(suffix) && strings.EqualFold(version[len(version)-len(suffix):], suffix) {
			version = version[:len(version)-len(suffix)]
		}
	}
	return version
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

// ExtractFromOutput extracts the first version from command output.
// If no pattern is provided DefaultPattern is used; the first capture group is the version.
func ExtractFromOutput(output, pattern string) (string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid version pattern: %w", err)
	}

	matches := re.FindStringSubmatch(output)
	if len(matches) < 2 {
		return "", fmt.Errorf("version not found in output")
	}
	return Normalize(matches[1]), nil
}

// FromFilename parses a version token out of an artifact name, e.g. Eden-Linux-v0.0.3-amd64.AppImage
func FromFilename(path string) (string, bool) {
	matches := filenameTok.FindStringSubmatch(filepath.Base(path))
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// IsComparable reports whether a version can be ordered by Compare
func IsComparable(v string) bool {
	return numericVersion.MatchString(Normalize(v))
}

// Compare orders two 3 or 4 segment numeric versions, returning -1, 0 or 1.
// Anything else, including prerelease suffixes, returns ErrIncomparable.
func Compare(v1, v2 string) (int, error) {
	norm1, norm2 := Normalize(v1), Normalize(v2)
	if !numericVersion.MatchString(norm1) || !numericVersion.MatchString(norm2) {
		return 0, fmt.Errorf("%w: %q and %q", ErrIncomparable, v1, v2)
	}

	sv1, err := semver.NewVersion(threeSegments(norm1))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncomparable, err)
	}
	sv2, err := semver.NewVersion(threeSegments(norm2))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncomparable, err)
	}
	if c := sv1.Compare(sv2); c != 0 {
		return c, nil
	}

	// semver has no fourth segment, a missing one counts as 0
	b1, b2 := fourthSegment(norm1), fourthSegment(norm2)
	switch {
	case b1 < b2:
		return -1, nil
	case b1 > b2:
		return 1, nil
	}
	return 0, nil
}

func threeSegments(v string) string {
	parts := strings.Split(v, ".")
	return strings.Join(parts[:3], ".")
}

func fourthSegment(v string) uint64 {
	parts := strings.Split(v, ".")
	if len(parts) < 4 {
		return 0
	}
	n, _ := strconv.ParseUint(parts[3], 10, 64)
	return n
}

// IsNewer reports whether candidate is strictly newer than installed
func IsNewer(candidate, installed string) (bool, error) {
	c, err := Compare(candidate, installed)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// GetNewerVersion returns the newer of two versions, or error if they cannot be compared
func GetNewerVersion(v1, v2 string) (string, error) {
	cmp, err := Compare(v1, v2)
	if err != nil {
		return "", err
	}
	if cmp >= 0 {
		return v1, nil
	}
	return v2, nil
}
