package updater

import (
	"context"
	"fmt"
	"io"

	"github.com/flanksource/clicky"
	"github.com/flanksource/clicky/task"
	flanksourceContext "github.com/flanksource/commons/context"
	"github.com/flanksource/eden-updater/pkg/cache"
	"github.com/flanksource/eden-updater/pkg/config"
	"github.com/flanksource/eden-updater/pkg/diskimage"
	"github.com/flanksource/eden-updater/pkg/installer"
	"github.com/flanksource/eden-updater/pkg/launcher"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/prefs"
	"github.com/flanksource/eden-updater/pkg/registry"
	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/flanksource/eden-updater/pkg/types"
)

// Re-export commonly used types for public API
type (
	Channel        = types.Channel
	UpdateInfo     = types.UpdateInfo
	UpdateArtifact = types.UpdateArtifact
	InstallOptions = types.InstallOptions
	InstallResult  = types.InstallResult
	InstallStatus  = types.InstallStatus
	InstallError   = installer.InstallError
)

// Re-export status constants
const (
	ChannelStable  = types.ChannelStable
	ChannelNightly = types.ChannelNightly

	InstallStatusInstalled = types.InstallStatusInstalled
	InstallStatusHandedOff = types.InstallStatusHandedOff
	InstallStatusFailed    = types.InstallStatusFailed
)

// Re-export orchestrator options
type Option = installer.Option

var (
	WithInstallRoot = installer.WithInstallRoot
	WithTmpDir      = installer.WithTmpDir
	WithCacheDir    = installer.WithCacheDir
	WithDebug       = installer.WithDebug
	WithPlatform    = installer.WithPlatform
	WithRunner      = installer.WithRunner
	WithShortcuts   = installer.WithShortcuts
)

// Updater wires the installer, registry and launcher of one install root together
type Updater struct {
	config    *config.Config
	store     prefs.Store
	registry  *registry.Registry
	installer *installer.Orchestrator
	launcher  *launcher.Dispatcher
	releases  *cache.ReleaseCache
}

// New creates an updater from a loaded configuration. Options are applied after the configuration.
func New(cfg *config.Config, opts ...Option) (*Updater, error) {
	store, err := cfg.OpenPreferences()
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}

	profile := platform.ProfileFor(cfg.Platform)
	runner := shell.NewExecRunner(0)
	reg := registry.New(store, profile,
		registry.WithInstallRoot(cfg.InstallRoot),
		registry.WithRunner(runner),
		registry.WithProbeTimeout(cfg.ProbeTimeout))

	base := []Option{
		installer.WithPlatform(cfg.Platform),
		installer.WithInstallRoot(cfg.InstallRoot),
		installer.WithTmpDir(cfg.TmpDir),
		installer.WithCacheDir(cfg.CacheDir),
		installer.WithRunner(runner),
		installer.WithRegistry(reg),
		installer.WithProductName(cfg.ProductName),
		installer.WithBundleSearchDepth(cfg.BundleSearchDepth),
		installer.WithAllowAndroidNightly(cfg.AllowAndroidNightly),
	}
	if cfg.Platform.IsDarwin() {
		base = append(base, installer.WithMounter(diskimage.NewHdiutil(runner,
			diskimage.WithAttempts(cfg.MountAttempts),
			diskimage.WithRetryDelay(cfg.MountRetryDelay),
			diskimage.WithTmpDir(cfg.TmpDir))))
	}

	return &Updater{
		config:    cfg,
		store:     store,
		registry:  reg,
		installer: installer.New(append(base, opts...)...),
		launcher:  launcher.New(reg, launcher.WithRunner(runner)),
		releases:  cache.NewReleaseCache(cfg.ReleaseCacheTTL),
	}, nil
}

func (u *Updater) Config() *config.Config {
	return u.config
}

func (u *Updater) Registry() *registry.Registry {
	return u.registry
}

func (u *Updater) Installer() *installer.Orchestrator {
	return u.installer
}

// Install installs a downloaded artifact. Failures are *InstallError values.
func (u *Updater) Install(ctx context.Context, artifact UpdateArtifact, opts InstallOptions, onProgress types.ProgressFunc, onStatus types.StatusFunc) error {
	return u.installer.Install(ctx, artifact, opts, onProgress, onStatus)
}

func (u *Updater) InstallWithResult(ctx context.Context, artifact UpdateArtifact, opts InstallOptions, onProgress types.ProgressFunc, onStatus types.StatusFunc) (InstallResult, error) {
	result, err := u.installer.InstallWithResult(ctx, artifact, opts, onProgress, onStatus)
	if err == nil {
		u.releases.Invalidate(result.Channel)
	}
	return result, err
}

// Launch starts the installed emulator of a channel
func (u *Updater) Launch(ctx context.Context, ch Channel) (*launcher.Launched, error) {
	return u.launcher.Launch(ctx, ch)
}

// CurrentVersion returns the installed version of a channel, or "" when unknown
func (u *Updater) CurrentVersion(ctx context.Context, ch Channel) string {
	return u.registry.GetCurrentVersion(ctx, ch)
}

// CheckForUpdate fetches the latest release of a channel, at most once per cache TTL unless forced,
// and reports whether it is newer than what is installed
func (u *Updater) CheckForUpdate(ctx context.Context, ch Channel, force bool, fetch cache.FetchFunc) (*UpdateInfo, bool, error) {
	latest, err := u.releases.Get(ctx, ch, force, fetch)
	if err != nil {
		return nil, false, err
	}
	available, err := u.registry.IsUpdateAvailable(ctx, ch, latest.Version)
	if err != nil {
		return latest, false, err
	}
	return latest, available, nil
}

// Forget removes everything recorded about a channel; installed files are left alone
func (u *Updater) Forget(ch Channel) error {
	u.releases.Invalidate(ch)
	return u.registry.ClearVersionInfo(ch)
}

// Close releases the preferences store
func (u *Updater) Close() error {
	if c, ok := u.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Install installs a downloaded artifact using the global configuration and reports
// progress through a task.
//
// Example:
//
//	result, err := updater.Install("Eden-Linux.AppImage",
//	    updater.UpdateInfo{Version: "0.0.3", Channel: updater.ChannelStable},
//	    updater.InstallOptions{PortableMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Pretty())
func Install(path string, info UpdateInfo, opts InstallOptions, options ...Option) (*InstallResult, error) {
	cfg, err := config.Global()
	if err != nil {
		return nil, err
	}
	u, err := New(cfg, options...)
	if err != nil {
		return nil, err
	}
	defer u.Close()

	var result InstallResult
	var installErr error

	artifact := types.NewUpdateArtifact(path, info)
	task.StartTask(fmt.Sprintf("install %s", artifact.Info.Channel), func(ctx flanksourceContext.Context, t *task.Task) (interface{}, error) {
		result, installErr = u.InstallWithResult(ctx, artifact, opts, TaskProgress(t), TaskStatus(t))
		if installErr == nil {
			t.Success()
		}
		return result, installErr
	})

	clicky.WaitForGlobalCompletion()

	return &result, installErr
}

// TaskProgress forwards install progress to a task's progress bar
func TaskProgress(t *task.Task) types.ProgressFunc {
	return func(fraction float64) {
		t.SetProgress(int(fraction*1000), 1000)
	}
}

// TaskStatus shows install status messages as the task description
func TaskStatus(t *task.Task) types.StatusFunc {
	return func(status string) {
		t.SetDescription(status)
	}
}
