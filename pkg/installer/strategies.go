package installer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flanksource/eden-updater/pkg/cache"
	"github.com/flanksource/eden-updater/pkg/extract"
	"github.com/flanksource/eden-updater/pkg/filesystem"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/utils"
)

// strategy is the per-variant install procedure. Steps left nil are skipped.
type strategy struct {
	name   string
	ranges ranges
	// handOff strategies give the artifact to the OS and never touch the install directory
	handOff bool
	// backupEarly moves the previous install aside before unpacking instead of before placing
	backupEarly bool
	validate    func(r *run) error
	unpack      func(ctx context.Context, r *run) error
	place       func(ctx context.Context, r *run) error
	permission  func(r *run) error
}

func (o *Orchestrator) strategyTable() map[types.Variant]strategy {
	archive := strategy{
		name:       "archive",
		ranges:     defaultRanges,
		validate:   validateArchive,
		unpack:     o.unpackArchive,
		place:      o.placeArchive,
		permission: o.permissionInstall,
	}
	macArchive := archive
	macArchive.backupEarly = true

	bundle := strategy{
		name:       "bundle",
		ranges:     bundleRanges,
		validate:   o.validateBundleArtifact,
		unpack:     o.locateBundle,
		place:      o.copyBundle,
		permission: o.permissionInstall,
	}
	handOff := strategy{
		name:     "package",
		ranges:   handOffRanges,
		handOff:  true,
		validate: o.validatePackage,
	}

	return map[types.Variant]strategy{
		types.VariantLinuxArchive:   archive,
		types.VariantWindowsArchive: archive,
		types.VariantMacArchive:     macArchive,
		types.VariantLinuxAppImage: {
			name:       "single-binary",
			ranges:     defaultRanges,
			validate:   validateBinary,
			place:      o.placeBinary,
			permission: o.permissionBinary,
		},
		types.VariantMacDiskImage:     bundle,
		types.VariantMacAppBundle:     bundle,
		types.VariantAndroidPackage:   handOff,
		types.VariantWindowsInstaller: handOff,
	}
}

func validateArchive(r *run) error {
	if err := extract.Validate(r.artifact.Path); err != nil {
		return newError(KindValidationFailed, err, "The downloaded archive is corrupt")
	}
	return nil
}

func (o *Orchestrator) unpackArchive(ctx context.Context, r *run) error {
	staging := filepath.Join(o.tmpDir, "eden-extract-"+r.id)
	r.cleanup.AddDirectory(staging)
	if _, err := extract.Extract(r.artifact.Path, staging, r.within(StateUnpacking)); err != nil {
		return newError(KindExtractionFailed, err, "Failed to extract %s", filepath.Base(r.artifact.Path))
	}
	// resource forks added by the macOS archiver
	_ = os.RemoveAll(filepath.Join(staging, "__MACOSX"))
	r.source = payloadRoot(o.gateway, o.profile, staging)
	r.log.Debugf("Payload found at %s", utils.LogPath(r.source))
	return nil
}

func (o *Orchestrator) placeArchive(ctx context.Context, r *run) error {
	result, err := o.gateway.MoveContents(r.source, r.dir)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		r.log.Warnf("%d of %d entries could not be moved into %s: %v",
			result.Failed, result.Failed+result.Processed, utils.LogPath(r.dir), result.ErrorOrNil())
	}
	return nil
}

// permissionInstall marks every recognized executable of the install directory and picks the one to launch
func (o *Orchestrator) permissionInstall(r *run) error {
	result, err := o.gateway.SetExecutableRecursive(r.dir, o.profile.IsExecutable)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		r.log.Warnf("Failed to set permissions on %d files: %v", result.Failed, result.ErrorOrNil())
	}
	if exe, err := o.gateway.FindInstalledExecutable(r.dir, r.channel.BinaryName()); err == nil {
		r.executable = exe
	} else {
		r.log.Debugf("No executable yet: %v", err)
	}
	return nil
}

func validateBinary(r *run) error {
	info, err := os.Stat(r.artifact.Path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return newError(KindValidationFailed, nil, "The downloaded file is empty")
	}
	return nil
}

func (o *Orchestrator) placeBinary(ctx context.Context, r *run) error {
	dest := filepath.Join(r.dir, r.channel.BinaryName())
	if err := filesystem.CopyFile(r.artifact.Path, dest, 0755); err != nil {
		return err
	}
	r.executable = dest
	return nil
}

func (o *Orchestrator) permissionBinary(r *run) error {
	return o.gateway.SetExecutable(r.executable)
}

// diskImageTrailer is the signature of the UDIF trailer that ends every .dmg
var diskImageTrailer = []byte("koly")

func (o *Orchestrator) validateBundleArtifact(r *run) error {
	if r.variant == types.VariantMacAppBundle {
		if err := ValidateBundle(o.gateway, r.artifact.Path); err != nil {
			return newError(KindValidationFailed, err, "%s is not a valid application", filepath.Base(r.artifact.Path))
		}
		return nil
	}
	if err := validateDiskImage(r.artifact.Path); err != nil {
		return newError(KindValidationFailed, err, "The downloaded disk image is corrupt")
	}
	return nil
}

func validateDiskImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < 512 {
		return fmt.Errorf("%s is too small to be a disk image", filepath.Base(path))
	}
	trailer := make([]byte, len(diskImageTrailer))
	if _, err := f.ReadAt(trailer, info.Size()-512); err != nil && err != io.EOF {
		return err
	}
	if !bytes.Equal(trailer, diskImageTrailer) {
		return fmt.Errorf("%s has no disk image trailer", filepath.Base(path))
	}
	return nil
}

// locateBundle mounts a disk image and finds the application inside it; a bare bundle is used as is
func (o *Orchestrator) locateBundle(ctx context.Context, r *run) error {
	if r.variant == types.VariantMacAppBundle {
		r.source = r.artifact.Path
		return nil
	}
	if o.mounter == nil {
		return newError(KindPlatformOperationFailed, nil, "Disk images cannot be mounted on %s", o.profile.Platform)
	}

	progress := r.within(StateUnpacking)
	root, err := o.mounter.Mount(ctx, r.artifact.Path)
	if err != nil {
		return newError(KindPlatformOperationFailed, err, "Failed to open %s", filepath.Base(r.artifact.Path))
	}
	r.cleanup.AddMount(o.mounter, root)
	progress(0.5)

	bundle, err := FindBundle(root, o.productName, o.bundleDepth)
	if err != nil {
		return newError(KindValidationFailed, err, "No %s application was found in %s", o.productName, filepath.Base(r.artifact.Path))
	}
	if err := ValidateBundle(o.gateway, bundle); err != nil {
		return newError(KindValidationFailed, err, "%s is not a valid application", filepath.Base(bundle))
	}
	r.source = bundle
	progress(1)
	return nil
}

func (o *Orchestrator) copyBundle(ctx context.Context, r *run) error {
	dest := filepath.Join(r.dir, filepath.Base(r.source))
	result, err := o.gateway.CopyDirectoryRecursive(r.source, dest)
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		r.log.Warnf("%d files of %s could not be copied: %v", result.Failed, filepath.Base(r.source), result.ErrorOrNil())
	}
	return nil
}

func (o *Orchestrator) validatePackage(r *run) error {
	if o.packages == nil {
		return newError(KindUnsupportedArtifactType, nil, "No system installer is available on %s", o.profile.Platform)
	}
	if err := o.packages.Validate(r.artifact.Path); err != nil {
		return newError(KindValidationFailed, err, "The downloaded installer is corrupt")
	}
	return nil
}

// handOff gives a cached copy of the artifact to the OS installer and records the install as requested
func (o *Orchestrator) handOff(ctx context.Context, r *run) error {
	artifact := r.artifact.Path
	if o.cacheDir != "" {
		key := r.artifact.Info.DownloadURL
		if key == "" {
			key = artifact
		}
		if cached, err := cache.SaveToCache(o.cacheDir, key, artifact); err != nil {
			r.log.Warnf("Failed to cache %s: %v", filepath.Base(artifact), err)
		} else {
			artifact = cached
		}
	}

	r.within(StateHandingOff)(0.5)
	if err := o.packages.HandOff(ctx, artifact); err != nil {
		return newError(KindPlatformOperationFailed, err, "Failed to open the system installer")
	}

	if err := o.registry.SetArtifactPath(r.channel, artifact); err != nil {
		r.log.Warnf("Failed to remember %s: %v", utils.LogPath(artifact), err)
	}
	target := ""
	if o.profile.PackageBased {
		target = o.profile.PackageID
	}
	if err := o.registry.StoreHandOff(r.channel, r.artifact.Info, target); err != nil {
		r.log.Warnf("Failed to record %s %s: %v", r.channel, r.artifact.Info.Version, err)
	}
	return nil
}
