package types

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flanksource/clicky"
	"github.com/flanksource/clicky/api"
	"github.com/flanksource/clicky/api/icons"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/utils"
)

// Channel is a named release track with its own install directory and version record
type Channel string

const (
	ChannelStable  Channel = "stable"
	ChannelNightly Channel = "nightly"
)

// Channels lists every known release channel
var Channels = []Channel{ChannelStable, ChannelNightly}

// ParseChannel converts user input into a Channel
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stable", "release":
		return ChannelStable, nil
	case "nightly":
		return ChannelNightly, nil
	default:
		return "", fmt.Errorf("unknown release channel %q (expected stable or nightly)", s)
	}
}

// DirName is the channel's sub-directory under the install root
func (c Channel) DirName() string {
	if c == ChannelNightly {
		return "Eden-Nightly"
	}
	return "Eden-Release"
}

// BinaryName is the fixed file name single-binary installs are written to
func (c Channel) BinaryName() string {
	if c == ChannelNightly {
		return "eden-nightly"
	}
	return "eden-stable"
}

func (c Channel) String() string {
	return string(c)
}

// Variant is the artifact kind returned by the classifier
type Variant string

const (
	VariantAndroidPackage   Variant = "AndroidPackage"
	VariantLinuxAppImage    Variant = "LinuxAppImage"
	VariantLinuxArchive     Variant = "LinuxArchive"
	VariantMacDiskImage     Variant = "MacDiskImage"
	VariantMacAppBundle     Variant = "MacAppBundle"
	VariantMacArchive       Variant = "MacArchive"
	VariantWindowsArchive   Variant = "WindowsArchive"
	VariantWindowsInstaller Variant = "WindowsInstaller"
	VariantUnsupported      Variant = "Unsupported"
)

// IsArchive returns true for the archive variants of every platform
func (v Variant) IsArchive() bool {
	return v == VariantLinuxArchive || v == VariantMacArchive || v == VariantWindowsArchive
}

// UpdateInfo is the release metadata handed over by the downloader
type UpdateInfo struct {
	// Version is the declared version of the release, e.g. 0.0.3
	Version string `json:"version" yaml:"version"`
	// Channel is the release track the artifact belongs to
	Channel Channel `json:"channel" yaml:"channel"`
	// DownloadURL is the URL the artifact was downloaded from
	DownloadURL string `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	// FileSize is the declared size of the artifact in bytes
	FileSize int64 `json:"file_size,omitempty" yaml:"file_size,omitempty"`
	// ReleaseNotes is the human readable changelog
	ReleaseNotes string `json:"release_notes,omitempty" yaml:"release_notes,omitempty"`
	// ReleaseDate is when the release was published
	ReleaseDate time.Time `json:"release_date,omitempty" yaml:"release_date,omitempty"`
	// Checksum is an optional "sha256:<hex>" (or bare hex) digest of the artifact
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// UpdateArtifact is a downloaded update payload. It is immutable once created.
type UpdateArtifact struct {
	Path string
	Info UpdateInfo
}

// NewUpdateArtifact binds a downloaded file to its release metadata
func NewUpdateArtifact(path string, info UpdateInfo) UpdateArtifact {
	if info.Channel == "" {
		info.Channel = ChannelStable
	}
	return UpdateArtifact{Path: path, Info: info}
}

// Name returns the lowercase base name of the artifact
func (a UpdateArtifact) Name() string {
	return strings.ToLower(filepath.Base(a.Path))
}

// InstallOptions are the caller's per-install switches
type InstallOptions struct {
	CreateShortcuts bool `json:"create_shortcuts,omitempty" yaml:"create_shortcuts,omitempty"`
	PortableMode    bool `json:"portable_mode,omitempty" yaml:"portable_mode,omitempty"`
}

// InstallationRecord is the persisted fact that a version is installed for a channel
type InstallationRecord struct {
	Version string `json:"version" yaml:"version"`
	// ExecutablePath is a filesystem path, or a package id on package-based platforms
	ExecutablePath string    `json:"executable_path" yaml:"executable_path"`
	InstallDate    time.Time `json:"install_date" yaml:"install_date"`
	DownloadURL    string    `json:"download_url,omitempty" yaml:"download_url,omitempty"`
	FileSize       int64     `json:"file_size,omitempty" yaml:"file_size,omitempty"`
	// HandedOff records that a system installer was started; its files live outside the channel directory
	HandedOff bool `json:"handed_off,omitempty" yaml:"handed_off,omitempty"`
}

// ProgressFunc receives a monotonically non-decreasing fraction in [0,1]
type ProgressFunc func(fraction float64)

// StatusFunc receives short human readable phase descriptions
type StatusFunc func(status string)

type InstallStatus string

const (
	InstallStatusInstalled InstallStatus = "installed"
	InstallStatusHandedOff InstallStatus = "handed_off"
	InstallStatusFailed    InstallStatus = "failed"
)

func (s InstallStatus) Pretty() api.Text {
	switch s {
	case InstallStatusInstalled:
		return clicky.Text("").Add(icons.Success).Append(" Installed", "text-green-500")
	case InstallStatusHandedOff:
		return clicky.Text("").Add(icons.InfoAlt).Append(" Handed off", "text-blue-500")
	case InstallStatusFailed:
		return clicky.Text("").Add(icons.Error).Append(" Failed", "text-red-500")
	default:
		return clicky.Text(string(s))
	}
}

// InstallResult describes a finished install call
type InstallResult struct {
	Channel Channel `json:"channel"`
	Version string  `json:"version,omitempty"`
	Variant Variant `json:"variant"`
	// Platform is the host the strategy was selected for
	Platform platform.Platform `json:"platform"`
	Status   InstallStatus     `json:"status"`
	// States lists every orchestrator state visited, in order
	States         []string      `json:"states,omitempty"`
	InstallDir     string        `json:"install_dir,omitempty"`
	ExecutablePath string        `json:"executable_path,omitempty"`
	ArtifactSize   int64         `json:"artifact_size,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
	Error          error         `json:"error,omitempty"`
}

func relativeDir(base string) string {
	if base == "" {
		return ""
	}
	cwd, _ := os.Getwd()
	rel, err := filepath.Rel(cwd, base)
	if err != nil || strings.HasPrefix(rel, "..") {
		return base
	}
	return rel
}

func (r InstallResult) Pretty() api.Text {
	text := clicky.Text("")

	info := "eden " + string(r.Channel)
	if r.Version != "" {
		info += "@" + r.Version
	}
	if r.Platform.OS != "" {
		info += " (" + r.Platform.String() + ")"
	}
	text = text.Add(r.Status.Pretty()).Append(": " + info)

	if r.Error != nil {
		text = text.Append(" "+r.Error.Error(), "text-red-500")
		return text
	}

	text = text.Append(" variant: ", "muted").Append(string(r.Variant))
	if r.InstallDir != "" {
		text = text.Append(" to: ", "muted").Append(relativeDir(r.InstallDir))
	}
	if r.ExecutablePath != "" {
		text = text.Append(" exec: ", "muted").Append(utils.LogPath(r.ExecutablePath))
	}
	if r.Duration > 0 {
		text = text.Append(" in ", "muted").Printf("%s", r.Duration.Round(time.Millisecond))
	}
	if r.ArtifactSize > 0 {
		text = text.Append(" size: ", "muted").Append(utils.FormatBytes(r.ArtifactSize))
	}
	return text
}
