package platform

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPackageID is the Android application id of the emulator
const DefaultPackageID = "dev.eden.eden_emulator"

// Profile is the per-host strategy record selected once at startup. It holds the
// data that differs between platforms so installers, the registry and the
// launcher can share a single control flow.
type Profile struct {
	Platform Platform
	// ExecBit is true when the host has an executable permission bit
	ExecBit bool
	// PackageBased hosts install through an OS package manager instead of the filesystem
	PackageBased bool
	// NightlyAllowed reports whether the nightly channel may be installed
	NightlyAllowed bool
	PackageID      string
	// ExecutablePatterns are lowercase doublestar patterns, relative to an install dir
	ExecutablePatterns []string
	// RuntimePatterns recognize files that belong to an Eden payload (executables included)
	RuntimePatterns []string
}

// ProfileFor returns the profile for a host platform
func ProfileFor(p Platform) Profile {
	switch {
	case p.IsAndroid():
		return Profile{
			Platform:     p,
			PackageBased: true,
			PackageID:    DefaultPackageID,
		}
	case p.IsWindows():
		exec := []string{"**/eden*.exe", "**/yuzu*.exe"}
		return Profile{
			Platform:           p,
			NightlyAllowed:     true,
			ExecutablePatterns: exec,
			RuntimePatterns:    append([]string{"**/*.dll", "**/qt.conf", "**/platforms/*"}, exec...),
		}
	case p.IsDarwin():
		exec := []string{"**/*.app/contents/macos/*", "**/eden", "**/eden-cli"}
		return Profile{
			Platform:           p,
			ExecBit:            true,
			NightlyAllowed:     true,
			ExecutablePatterns: exec,
			RuntimePatterns:    append([]string{"**/*.app/contents/info.plist", "**/*.dylib"}, exec...),
		}
	default:
		exec := []string{"**/eden", "**/eden-*", "**/*.appimage"}
		return Profile{
			Platform:           p,
			ExecBit:            true,
			NightlyAllowed:     true,
			ExecutablePatterns: exec,
			RuntimePatterns:    append([]string{"**/*.so", "**/*.so.*"}, exec...),
		}
	}
}

// ExecutableNames returns the conventional executable file names, best first
func (pr Profile) ExecutableNames(channelBinary string) []string {
	switch {
	case pr.Platform.IsWindows():
		return []string{"eden.exe", pr.Platform.AddExtension(channelBinary)}
	case pr.Platform.IsDarwin():
		return []string{"Eden", "eden", channelBinary}
	default:
		return []string{channelBinary, "eden", "Eden"}
	}
}

// IsExecutable reports whether a path relative to an install dir looks like an Eden executable
func (pr Profile) IsExecutable(rel string) bool {
	return matchAny(pr.ExecutablePatterns, rel)
}

// IsRuntimeFile reports whether a relative path looks like part of an Eden payload
func (pr Profile) IsRuntimeFile(rel string) bool {
	return matchAny(pr.RuntimePatterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	name := strings.ToLower(filepath.ToSlash(rel))
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
