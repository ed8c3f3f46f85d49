package installer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/flanksource/eden-updater/pkg/checksum"
	"github.com/flanksource/eden-updater/pkg/classify"
	"github.com/flanksource/eden-updater/pkg/diskimage"
	"github.com/flanksource/eden-updater/pkg/filesystem"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/prefs"
	"github.com/flanksource/eden-updater/pkg/registry"
	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/flanksource/eden-updater/pkg/shortcut"
	"github.com/flanksource/eden-updater/pkg/system"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/utils"
	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Orchestrator installs downloaded update artifacts. Installs of one channel run one at a time.
type Orchestrator struct {
	installRoot string
	tmpDir      string
	cacheDir    string
	productName string
	bundleDepth int
	debug       bool

	allowAndroidNightly bool

	profile    platform.Profile
	runner     shell.Runner
	mounter    diskimage.Mounter
	registry   *registry.Registry
	packages   system.PackageInstaller
	shortcuts  shortcut.Registrar
	classifier Classifier
	gateway    *filesystem.Gateway
	freeSpace  func(path string) (uint64, error)
	newRunID   func() string

	strategies map[types.Variant]strategy
	locks      channelLocks
}

// New creates an orchestrator for the current host unless WithPlatform says otherwise
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		profile:     platform.ProfileFor(platform.Current()),
		tmpDir:      os.TempDir(),
		productName: "Eden",
		bundleDepth: 3,
		freeSpace:   FreeSpace,
		newRunID:    func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.installRoot == "" {
		home, _ := os.UserHomeDir()
		o.installRoot = filepath.Join(home, o.productName)
	}
	if o.runner == nil {
		o.runner = shell.NewExecRunner(0)
	}
	if o.classifier == nil {
		o.classifier = classify.New(o.profile.Platform)
	}
	if o.mounter == nil && o.profile.Platform.IsDarwin() {
		o.mounter = diskimage.NewHdiutil(o.runner, diskimage.WithTmpDir(o.tmpDir))
	}
	if o.packages == nil {
		if p, ok := system.ForPlatform(o.profile.Platform, o.runner); ok {
			o.packages = p
		}
	}
	if o.registry == nil {
		o.registry = registry.New(prefs.NewMemoryStore(), o.profile,
			registry.WithInstallRoot(o.installRoot), registry.WithRunner(o.runner))
	}
	o.gateway = filesystem.New(o.profile)
	o.strategies = o.strategyTable()
	return o
}

func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

func (o *Orchestrator) Profile() platform.Profile {
	return o.profile
}

// ChannelDir is the directory a channel is installed into
func (o *Orchestrator) ChannelDir(ch types.Channel) string {
	return filepath.Join(o.installRoot, ch.DirName())
}

// Classify returns the variant the artifact would be installed as
func (o *Orchestrator) Classify(path string) types.Variant {
	return o.classifier.Classify(path)
}

// Install installs an artifact, reporting progress in [0,1] and short status messages.
// Failures are returned as *InstallError.
func (o *Orchestrator) Install(ctx context.Context, artifact types.UpdateArtifact, opts types.InstallOptions, onProgress types.ProgressFunc, onStatus types.StatusFunc) error {
	_, err := o.InstallWithResult(ctx, artifact, opts, onProgress, onStatus)
	return err
}

// InstallWithResult is Install, also describing the run
func (o *Orchestrator) InstallWithResult(ctx context.Context, artifact types.UpdateArtifact, opts types.InstallOptions, onProgress types.ProgressFunc, onStatus types.StatusFunc) (types.InstallResult, error) {
	ch := artifact.Info.Channel
	if ch == "" {
		ch = types.ChannelStable
	}
	result := types.InstallResult{
		Channel:  ch,
		Version:  artifact.Info.Version,
		Platform: o.profile.Platform,
	}

	release, err := o.locks.acquire(ctx, ch)
	if err != nil {
		err = fmt.Errorf("waiting for the running %s install: %w", ch, err)
		result.Status, result.Error = types.InstallStatusFailed, err
		return result, err
	}
	defer release()

	// once started, a run always finishes so the install directory is never left half swapped
	ctx = context.WithoutCancel(ctx)

	r := o.newRun(ch, artifact, opts, onProgress, onStatus)
	start := time.Now()
	err = o.execute(ctx, r)

	result.Variant = r.variant
	result.States = lo.Map(r.states, func(s State, _ int) string { return string(s) })
	result.ArtifactSize = r.size
	result.Duration = time.Since(start)
	switch {
	case err != nil:
		result.Status, result.Error = types.InstallStatusFailed, err
	case r.strategy.handOff:
		result.Status = types.InstallStatusHandedOff
	default:
		result.Status = types.InstallStatusInstalled
		result.InstallDir = r.dir
		result.ExecutablePath = r.executable
	}
	return result, err
}

func (o *Orchestrator) newRun(ch types.Channel, artifact types.UpdateArtifact, opts types.InstallOptions, onProgress types.ProgressFunc, onStatus types.StatusFunc) *run {
	id := o.newRunID()
	logger := log.WithFields(log.Fields{"run": id, "channel": ch})
	return &run{
		id:       id,
		channel:  ch,
		artifact: artifact,
		opts:     opts,
		dir:      o.ChannelDir(ch),
		progress: newTracker(onProgress, onStatus),
		cleanup:  NewCleanupManager(o.debug, logger),
		log:      logger,
	}
}

// execute drives the state machine. Every run ends with CleaningUp followed by Done or Failed.
func (o *Orchestrator) execute(ctx context.Context, r *run) (err error) {
	defer func() {
		r.enter(StateCleaningUp)
		o.cleanUp(ctx, r, err)
		if err != nil {
			r.enter(StateFailed)
			r.log.WithField("kind", KindOf(err)).Errorf("Install of %s failed: %v", filepath.Base(r.artifact.Path), err)
			r.progress.status("Installation failed: " + userMessage(err))
			return
		}
		r.enter(StateDone)
		r.progress.report(1)
		r.log.Infof("Installed %s %s", r.channel, r.artifact.Info.Version)
	}()

	if err := r.step(StateValidating, func() error { return o.validate(r) }); err != nil {
		return err
	}
	if r.strategy.handOff {
		return r.step(StateHandingOff, func() error { return o.handOff(ctx, r) })
	}

	if r.strategy.unpack != nil || r.strategy.backupEarly {
		if err := r.step(StateUnpacking, func() error {
			if r.strategy.backupEarly {
				if err := o.backup(r); err != nil {
					return err
				}
			}
			if r.strategy.unpack == nil {
				return nil
			}
			return r.strategy.unpack(ctx, r)
		}); err != nil {
			return err
		}
	}
	if err := r.step(StatePlacing, func() error {
		if err := o.backup(r); err != nil {
			return err
		}
		return r.strategy.place(ctx, r)
	}); err != nil {
		return err
	}
	if err := r.step(StatePermissioning, func() error { return r.strategy.permission(r) }); err != nil {
		return err
	}
	if r.opts.PortableMode {
		if err := r.step(StatePortableSetup, func() error {
			_, err := o.gateway.EnsurePreserved(r.dir)
			return err
		}); err != nil {
			return err
		}
	}
	if r.opts.CreateShortcuts {
		if err := r.step(StateShortcutSetup, func() error { return o.createShortcut(ctx, r) }); err != nil {
			return err
		}
	}
	return r.step(StateVerifying, func() error { return o.verify(r) })
}

func (o *Orchestrator) validate(r *run) error {
	path := r.artifact.Path
	info, err := os.Stat(path)
	if err != nil {
		return newError(KindArtifactNotFound, err, "Update file not found: %s", filepath.Base(path))
	}
	if !info.IsDir() {
		r.size = info.Size()
	}

	r.variant = o.classifier.Classify(path)
	r.log = r.log.WithField("variant", r.variant)
	if r.variant == types.VariantUnsupported {
		return newError(KindUnsupportedArtifactType, nil, "%s is not a supported update for %s", filepath.Base(path), o.profile.Platform)
	}
	if r.channel == types.ChannelNightly && !o.profile.NightlyAllowed && !o.allowAndroidNightly {
		return newError(KindUnsupportedArtifactType, nil, "Nightly builds are not available on %s", o.profile.Platform.OS)
	}
	s, ok := o.strategies[r.variant]
	if !ok {
		return newError(KindUnsupportedArtifactType, nil, "%s artifacts cannot be installed", r.variant)
	}
	r.strategy = s

	progress := r.within(StateValidating)
	if declared := r.artifact.Info.FileSize; declared > 0 && !info.IsDir() && declared != info.Size() {
		return newError(KindValidationFailed, nil, "The update file is incomplete (%s of %s)",
			utils.FormatBytes(info.Size()), utils.FormatBytes(declared))
	}
	if r.artifact.Info.Checksum != "" {
		if err := checksum.VerifyChecksum(path, r.artifact.Info.Checksum); err != nil {
			return newError(KindValidationFailed, err, "The update file failed checksum verification")
		}
	}
	progress(0.3)

	if err := s.validate(r); err != nil {
		return err
	}
	progress(0.8)

	if !s.handOff {
		return o.checkDiskSpace(r)
	}
	return nil
}

func (o *Orchestrator) checkDiskSpace(r *run) error {
	required, err := estimateRequired(r.artifact.Path, r.variant)
	if err != nil {
		r.log.Warnf("Skipping disk space check: %v", err)
		return nil
	}
	free, err := o.freeSpace(o.installRoot)
	if err != nil {
		r.log.Warnf("Skipping disk space check: %v", err)
		return nil
	}
	if uint64(required) > free {
		return newError(KindInsufficientDiskSpace, nil, "Insufficient disk space. Required: %s, Available: %s",
			utils.FormatBytes(required), utils.FormatBytes(int64(free)))
	}
	return nil
}

// backup moves the previous install aside once per run
func (o *Orchestrator) backup(r *run) error {
	if r.backup != nil {
		return nil
	}
	err := utils.LogOperation("Backing up", r.dir, func() error {
		b, err := o.gateway.BackupDirectory(r.dir, r.id)
		r.backup = b
		return err
	})
	if err != nil {
		r.backup = nil
		return newError(KindPlacementFailed, err, "Failed to prepare %s", utils.LogPath(r.dir))
	}
	return nil
}

// createShortcut never fails the install, a missing launcher entry is only logged
func (o *Orchestrator) createShortcut(ctx context.Context, r *run) error {
	registrar := o.shortcuts
	if registrar == nil {
		var ok bool
		if registrar, ok = shortcut.ForProfile(o.profile, shortcut.WithRunner(o.runner)); !ok {
			r.log.Debugf("Shortcuts are not supported on %s", o.profile.Platform)
			return nil
		}
	}
	if r.executable == "" {
		r.log.Warnf("Skipping shortcut, no executable was found in %s", utils.LogPath(r.dir))
		return nil
	}
	path, err := registrar.Create(ctx, shortcut.NewShortcut(r.channel, o.productName, r.executable))
	if err != nil {
		r.log.Warnf("Failed to create shortcut: %v", err)
		return nil
	}
	r.log.Infof("Created shortcut %s", utils.LogPath(path))
	return nil
}

// verify checks the install directory holds a launchable emulator, then records it
func (o *Orchestrator) verify(r *run) error {
	if info, err := os.Stat(r.dir); err != nil || !info.IsDir() {
		return newError(KindVerificationFailed, err, "The install directory %s is missing", utils.LogPath(r.dir))
	}
	files, err := o.gateway.Candidates(r.dir, func(rel string, _ fs.FileInfo) bool {
		return o.profile.IsRuntimeFile(rel)
	})
	if err != nil || len(files) == 0 {
		return newError(KindVerificationFailed, err, "No %s files were installed", o.productName)
	}
	exe, err := o.gateway.FindInstalledExecutable(r.dir, r.channel.BinaryName())
	if err != nil {
		return newError(KindVerificationFailed, err, "No executable %s was installed", o.productName)
	}
	r.executable = exe
	r.within(StateVerifying)(0.5)

	if v := r.artifact.Info.Version; v != "" {
		if err := registry.WriteMarker(r.dir, v); err != nil {
			r.log.Warnf("Failed to write version marker: %v", err)
		}
	}
	if err := o.registry.StoreVersionInfo(r.channel, r.artifact.Info, exe); err != nil {
		r.log.Warnf("Failed to record %s %s: %v", r.channel, r.artifact.Info.Version, err)
	}
	return nil
}

// cleanUp restores the previous install on failure, then releases mounts and temporary files
func (o *Orchestrator) cleanUp(ctx context.Context, r *run, failure error) {
	if r.backup != nil {
		if failure != nil {
			if err := o.gateway.Restore(r.backup); err != nil {
				r.log.Errorf("Failed to restore the previous install of %s: %v", r.channel, err)
			}
		} else {
			o.gateway.Discard(r.backup)
		}
	}
	r.cleanup.Cleanup(ctx)
}

func userMessage(err error) string {
	var ie *InstallError
	if errors.As(err, &ie) && ie.Message != "" {
		return ie.Message
	}
	return err.Error()
}
