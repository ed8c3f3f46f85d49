package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flanksource/eden-updater/pkg/filesystem"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/prefs"
	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/version"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// MarkerFile is the version marker written into a channel directory after a filesystem install
const MarkerFile = "version.txt"

// PresenceWindow is how long after install a package is assumed present when it cannot be queried
const PresenceWindow = 30 * 24 * time.Hour

// Source is the lookup layer a version was found in
type Source string

const (
	SourceOverride Source = "override"
	SourceMetadata Source = "metadata"
	SourceLegacy   Source = "legacy"
	SourceProbe    Source = "probe"
	SourcePresence Source = "presence"
)

// Installed is what the registry knows about a channel's install
type Installed struct {
	Channel types.Channel
	// Version is empty when the install exists but its version could not be determined
	Version string
	// ExecutablePath is a filesystem path, or a package id on package-based platforms
	ExecutablePath string
	Source         Source
	Record         *types.InstallationRecord
}

// PresenceChecker answers whether a package is installed, for hosts where that needs a platform binding
type PresenceChecker interface {
	IsPackageInstalled(ctx context.Context, packageID string) (bool, error)
}

// Registry records and looks up the installed version and executable of each channel
type Registry struct {
	store        prefs.Store
	profile      platform.Profile
	gateway      *filesystem.Gateway
	runner       shell.Runner
	presence     PresenceChecker
	installRoot  string
	probeTimeout time.Duration
	now          func() time.Time
}

type Option func(*Registry)

func WithRunner(r shell.Runner) Option {
	return func(reg *Registry) { reg.runner = r }
}

func WithPresenceChecker(p PresenceChecker) Option {
	return func(reg *Registry) { reg.presence = p }
}

func WithInstallRoot(dir string) Option {
	return func(reg *Registry) { reg.installRoot = dir }
}

// WithProbeTimeout bounds each `--version` style probe
func WithProbeTimeout(d time.Duration) Option {
	return func(reg *Registry) { reg.probeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(reg *Registry) { reg.now = now }
}

func New(store prefs.Store, profile platform.Profile, opts ...Option) *Registry {
	r := &Registry{
		store:        store,
		profile:      profile,
		gateway:      filesystem.New(profile),
		probeTimeout: 8 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runner == nil {
		r.runner = shell.NewExecRunner(0)
	}
	return r
}

func (r *Registry) Profile() platform.Profile {
	return r.profile
}

// ChannelDir is the install directory of a channel
func (r *Registry) ChannelDir(ch types.Channel) string {
	return filepath.Join(r.installRoot, ch.DirName())
}

func (r *Registry) key(purpose string, ch types.Channel) string {
	return fmt.Sprintf("%s_%s_%s", r.profile.Platform.OS, purpose, ch)
}

func (r *Registry) metadataKey(ch types.Channel) string     { return r.key("install_metadata", ch) }
func (r *Registry) legacyKey(ch types.Channel) string       { return r.key("installed_version", ch) }
func (r *Registry) executableKey(ch types.Channel) string   { return r.key("executable_path", ch) }
func (r *Registry) overrideKey(ch types.Channel) string     { return r.key("version_override", ch) }
func (r *Registry) launchedKey(ch types.Channel) string     { return r.key("last_launched_package", ch) }
func (r *Registry) artifactPathKey(ch types.Channel) string { return r.key("artifact_path", ch) }

func (r *Registry) get(key string) string {
	v, ok, err := r.store.GetString(key)
	if err != nil {
		log.Warnf("Failed to read preference %s: %v", key, err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// GetCurrentVersion returns the installed version of a channel, or "" if none is known
func (r *Registry) GetCurrentVersion(ctx context.Context, ch types.Channel) string {
	installed := r.Lookup(ctx, ch)
	if installed == nil {
		return ""
	}
	return installed.Version
}

// Lookup walks the lookup layers in priority order and returns the first hit, or nil
func (r *Registry) Lookup(ctx context.Context, ch types.Channel) *Installed {
	logger := log.WithFields(log.Fields{"channel": ch, "platform": r.profile.Platform.OS})

	if v := r.get(r.overrideKey(ch)); v != "" {
		logger.Debugf("Using version override %s", v)
		return &Installed{Channel: ch, Version: v, Source: SourceOverride, ExecutablePath: r.get(r.executableKey(ch))}
	}

	if record := r.Record(ch); record != nil {
		if r.stillInstalled(ctx, ch, record.ExecutablePath, record) {
			return &Installed{Channel: ch, Version: record.Version, ExecutablePath: record.ExecutablePath, Source: SourceMetadata, Record: record}
		}
		logger.Infof("Installed executable %s is gone, clearing install record", record.ExecutablePath)
		if err := r.store.Remove(r.metadataKey(ch)); err != nil {
			logger.Warnf("Failed to clear install record: %v", err)
		}
	}

	if v := r.get(r.legacyKey(ch)); v != "" {
		exe := r.get(r.executableKey(ch))
		if r.stillInstalled(ctx, ch, exe, nil) {
			return &Installed{Channel: ch, Version: v, ExecutablePath: r.resolveExecutable(ch, exe), Source: SourceLegacy}
		}
	}

	if r.profile.PackageBased {
		if r.packagePresent(ctx, ch, nil) {
			return &Installed{Channel: ch, ExecutablePath: r.packageID(ch), Source: SourcePresence}
		}
		return nil
	}

	exe, err := r.gateway.FindInstalledExecutable(r.ChannelDir(ch), ch.BinaryName())
	if err != nil {
		logger.Debugf("No installed executable: %v", err)
		return nil
	}
	if v := r.Probe(ctx, ch, exe); v != "" {
		return &Installed{Channel: ch, Version: v, ExecutablePath: exe, Source: SourceProbe}
	}
	return nil
}

// stillInstalled checks a stored hit against the host: file existence, or package presence
func (r *Registry) stillInstalled(ctx context.Context, ch types.Channel, exe string, record *types.InstallationRecord) bool {
	if r.profile.PackageBased {
		return r.packagePresent(ctx, ch, record)
	}
	if record != nil && record.HandedOff && exe == "" {
		return true
	}
	if exe == "" {
		_, err := r.gateway.FindInstalledExecutable(r.ChannelDir(ch), ch.BinaryName())
		return err == nil
	}
	_, err := os.Stat(exe)
	return err == nil
}

func (r *Registry) resolveExecutable(ch types.Channel, exe string) string {
	if exe != "" || r.profile.PackageBased {
		if exe == "" {
			return r.packageID(ch)
		}
		return exe
	}
	found, _ := r.gateway.FindInstalledExecutable(r.ChannelDir(ch), ch.BinaryName())
	return found
}

func (r *Registry) packageID(ch types.Channel) string {
	if id := r.get(r.launchedKey(ch)); id != "" {
		return id
	}
	return r.profile.PackageID
}

// packagePresent asks the PresenceChecker if one is configured. Without one (or when it fails)
// a package is assumed present when installed within PresenceWindow or launched successfully before.
func (r *Registry) packagePresent(ctx context.Context, ch types.Channel, record *types.InstallationRecord) bool {
	id := r.profile.PackageID
	if record != nil && record.ExecutablePath != "" {
		id = record.ExecutablePath
	}
	if r.presence != nil {
		present, err := r.presence.IsPackageInstalled(ctx, id)
		if err == nil {
			return present
		}
		log.Warnf("Package presence check for %s failed, falling back to heuristics: %v", id, err)
	}
	if record != nil && !record.InstallDate.IsZero() && r.now().Sub(record.InstallDate) < PresenceWindow {
		return true
	}
	return r.get(r.launchedKey(ch)) != ""
}

// Record returns the structured install record of a channel
func (r *Registry) Record(ch types.Channel) *types.InstallationRecord {
	raw := r.get(r.metadataKey(ch))
	if raw == "" {
		return nil
	}
	var record types.InstallationRecord
	if err := yaml.Unmarshal([]byte(raw), &record); err != nil {
		log.Warnf("Ignoring unreadable install record for %s: %v", ch, err)
		return nil
	}
	if record.Version == "" {
		return nil
	}
	return &record
}

// StoreVersionInfo replaces the channel's install record in a single write, then refreshes the
// legacy version and executable keys on a best-effort basis
func (r *Registry) StoreVersionInfo(ch types.Channel, info types.UpdateInfo, executablePath string) error {
	return r.storeRecord(ch, r.newRecord(info, executablePath))
}

// StoreHandOff records an install that was handed to a system installer. The record is trusted
// on later lookups even though nothing was placed in the channel directory.
func (r *Registry) StoreHandOff(ch types.Channel, info types.UpdateInfo, target string) error {
	record := r.newRecord(info, target)
	record.HandedOff = true
	return r.storeRecord(ch, record)
}

func (r *Registry) newRecord(info types.UpdateInfo, executablePath string) types.InstallationRecord {
	return types.InstallationRecord{
		Version:        info.Version,
		ExecutablePath: executablePath,
		InstallDate:    r.now().UTC(),
		DownloadURL:    info.DownloadURL,
		FileSize:       info.FileSize,
	}
}

func (r *Registry) storeRecord(ch types.Channel, record types.InstallationRecord) error {
	data, err := yaml.Marshal(record)
	if err != nil {
		return err
	}
	if err := r.store.SetString(r.metadataKey(ch), string(data)); err != nil {
		return fmt.Errorf("failed to store install record: %w", err)
	}

	if err := r.store.SetString(r.legacyKey(ch), record.Version); err != nil {
		log.Warnf("Failed to store legacy version for %s: %v", ch, err)
	}
	if err := r.store.SetString(r.executableKey(ch), record.ExecutablePath); err != nil {
		log.Warnf("Failed to store executable path for %s: %v", ch, err)
	}
	log.WithFields(log.Fields{"channel": ch, "version": record.Version, "handed_off": record.HandedOff}).Debugf("Stored install record")
	return nil
}

// ClearVersionInfo removes every lookup layer for a channel
func (r *Registry) ClearVersionInfo(ch types.Channel) error {
	var errs *multierror.Error
	for _, key := range []string{
		r.metadataKey(ch), r.legacyKey(ch), r.executableKey(ch),
		r.overrideKey(ch), r.launchedKey(ch), r.artifactPathKey(ch),
	} {
		if err := r.store.Remove(key); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errs.ErrorOrNil()
}

// SetOverride pins the reported version of a channel, for development and tests
func (r *Registry) SetOverride(ch types.Channel, v string) error {
	if v == "" {
		return r.store.Remove(r.overrideKey(ch))
	}
	return r.store.SetString(r.overrideKey(ch), v)
}

// RecordLaunch remembers a package id that was launched successfully
func (r *Registry) RecordLaunch(ch types.Channel, packageID string) error {
	return r.store.SetString(r.launchedKey(ch), packageID)
}

// SetArtifactPath remembers the downloaded artifact, used to re-open it if a launch fails
func (r *Registry) SetArtifactPath(ch types.Channel, path string) error {
	return r.store.SetString(r.artifactPathKey(ch), path)
}

func (r *Registry) ArtifactPath(ch types.Channel) string {
	return r.get(r.artifactPathKey(ch))
}

// IsUpdateAvailable reports whether candidate is newer than the installed version.
// A channel with nothing installed always has an update available.
func (r *Registry) IsUpdateAvailable(ctx context.Context, ch types.Channel, candidate string) (bool, error) {
	installed := r.GetCurrentVersion(ctx, ch)
	if installed == "" {
		return true, nil
	}
	return version.IsNewer(candidate, installed)
}

// WriteMarker writes the version marker file into an install directory
func WriteMarker(dir, v string) error {
	return os.WriteFile(filepath.Join(dir, MarkerFile), []byte(v+"\n"), 0644)
}
