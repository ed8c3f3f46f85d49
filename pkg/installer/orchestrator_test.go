package installer_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flanksource/eden-updater/mock"
	"github.com/flanksource/eden-updater/pkg/installer"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/prefs"
	"github.com/flanksource/eden-updater/pkg/registry"
	"github.com/flanksource/eden-updater/pkg/types"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		root     string
		tmp      string
		cacheDir string
		work     string
		runner   *mock.Runner
		mounter  *mock.Mounter
		pkgs     *mock.PackageInstaller
		reg      *registry.Registry
		rec      *recorder
		stable   = types.ChannelStable
		nightly  = types.ChannelNightly
	)

	newOrchestrator := func(goos string, opts ...installer.Option) *installer.Orchestrator {
		p := platform.Platform{OS: goos, Arch: "amd64"}
		reg = registry.New(prefs.NewMemoryStore(), platform.ProfileFor(p),
			registry.WithInstallRoot(root), registry.WithRunner(runner))
		base := []installer.Option{
			installer.WithPlatform(p),
			installer.WithInstallRoot(root),
			installer.WithTmpDir(tmp),
			installer.WithCacheDir(cacheDir),
			installer.WithRunner(runner),
			installer.WithRegistry(reg),
			installer.WithFreeSpace(plenty),
			installer.WithMounter(mounter),
			installer.WithPackageInstaller(pkgs),
		}
		return installer.New(append(base, opts...)...)
	}

	artifact := func(path, version string, ch types.Channel) types.UpdateArtifact {
		return types.NewUpdateArtifact(path, types.UpdateInfo{Version: version, Channel: ch})
	}

	BeforeEach(func() {
		ctx = context.Background()
		base := GinkgoT().TempDir()
		root = filepath.Join(base, "Eden")
		tmp = filepath.Join(base, "tmp")
		cacheDir = filepath.Join(base, "cache")
		work = filepath.Join(base, "downloads")
		Expect(os.MkdirAll(tmp, 0755)).To(Succeed())
		runner = mock.NewRunner()
		mounter = mock.NewMounter(filepath.Join(base, "volume"))
		pkgs = mock.NewPackageInstaller()
		rec = &recorder{}
	})

	Context("installing a Linux archive", func() {
		var (
			o   *installer.Orchestrator
			zip string
			dir string
		)

		BeforeEach(func() {
			o = newOrchestrator("linux")
			zip = filepath.Join(work, "Eden-Linux-0.0.3.zip")
			dir = filepath.Join(root, "Eden-Release")
		})

		It("installs into the channel folder in portable mode", func() {
			writeZip(zip, map[string]entry{"eden-stable": {body: "#!/bin/sh\necho eden\n"}})

			result, err := o.InstallWithResult(ctx, artifact(zip, "0.0.3", stable),
				types.InstallOptions{PortableMode: true}, rec.onProgress, rec.onStatus)
			Expect(err).NotTo(HaveOccurred())

			exe := filepath.Join(dir, "eden-stable")
			info, err := os.Stat(exe)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm() & 0111).NotTo(BeZero())
			Expect(filepath.Join(dir, "user")).To(BeADirectory())
			Expect(readFile(filepath.Join(dir, registry.MarkerFile))).To(Equal("0.0.3\n"))
			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.3"))

			Expect(result.Status).To(Equal(types.InstallStatusInstalled))
			Expect(result.Variant).To(Equal(types.VariantLinuxArchive))
			Expect(result.ExecutablePath).To(Equal(exe))
			Expect(result.InstallDir).To(Equal(dir))
			Expect(result.States).To(Equal([]string{
				"Validating", "Unpacking", "Placing", "Permissioning", "PortableSetup", "Verifying", "CleaningUp", "Done",
			}))

			rec.expectMonotonic()
			Expect(rec.last()).To(Equal(1.0))
			Expect(rec.statuses).To(ContainElement("Installation complete"))

			leftovers, _ := filepath.Glob(filepath.Join(tmp, "eden-extract-*"))
			Expect(leftovers).To(BeEmpty())
		})

		It("unwraps a top-level folder and discards unrelated folders", func() {
			writeZip(zip, map[string]entry{
				"eden-linux/docs/README.md":   {body: "docs"},
				"eden-linux/bin/eden":         {body: "#!/bin/sh\n"},
				"eden-linux/bin/libeden.so.1": {body: "lib"},
			})

			Expect(o.Install(ctx, artifact(zip, "0.0.3", stable), types.InstallOptions{}, nil, nil)).To(Succeed())
			Expect(filepath.Join(dir, "eden")).To(BeARegularFile())
			Expect(filepath.Join(dir, "libeden.so.1")).To(BeARegularFile())
			Expect(filepath.Join(dir, "docs")).NotTo(BeADirectory())
		})

		It("restores the previous install and keeps user data when verification fails", func() {
			writeFile(filepath.Join(dir, "eden-stable"), "old build", 0755)
			writeFile(filepath.Join(dir, "user", "save.dat"), "progress", 0644)
			writeZip(zip, map[string]entry{"readme.txt": {body: "nothing to run"}})

			err := o.Install(ctx, artifact(zip, "0.0.4", stable), types.InstallOptions{}, rec.onProgress, rec.onStatus)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, installer.ErrVerificationFailed)).To(BeTrue())

			Expect(readFile(filepath.Join(dir, "eden-stable"))).To(Equal("old build"))
			Expect(readFile(filepath.Join(dir, "user", "save.dat"))).To(Equal("progress"))
			Expect(filepath.Join(dir, "readme.txt")).NotTo(BeAnExistingFile())
			backups, _ := filepath.Glob(filepath.Join(root, "Eden-Release.backup-*"))
			Expect(backups).To(BeEmpty())
			Expect(reg.Record(stable)).To(BeNil())

			rec.expectMonotonic()
			Expect(rec.last()).To(BeNumerically("<", 1))
			Expect(rec.statuses[len(rec.statuses)-1]).To(HavePrefix("Installation failed"))
		})

		It("removes a user folder shipped by a failed first install", func() {
			writeZip(zip, map[string]entry{
				"user/config/qt-config.ini": {body: "[UI]"},
				"readme.txt":                {body: "nothing to run"},
			})

			err := o.Install(ctx, artifact(zip, "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(errors.Is(err, installer.ErrVerificationFailed)).To(BeTrue())
			Expect(dir).NotTo(BeAnExistingFile())
			leftovers, _ := filepath.Glob(filepath.Join(tmp, "eden-extract-*"))
			Expect(leftovers).To(BeEmpty())
		})

		It("keeps the previous install when extraction fails", func() {
			writeFile(filepath.Join(dir, "eden-stable"), "old build", 0755)
			writeFile(filepath.Join(dir, "user", "save.dat"), "progress", 0644)
			writeZip(zip, map[string]entry{
				"eden-stable": {body: "../../../../outside", mode: os.ModeSymlink | 0777},
			})

			result, err := o.InstallWithResult(ctx, artifact(zip, "0.0.4", stable), types.InstallOptions{}, rec.onProgress, rec.onStatus)
			Expect(errors.Is(err, installer.ErrExtractionFailed)).To(BeTrue())
			Expect(result.States).To(Equal([]string{"Validating", "Unpacking", "CleaningUp", "Failed"}))

			Expect(readFile(filepath.Join(dir, "eden-stable"))).To(Equal("old build"))
			Expect(readFile(filepath.Join(dir, "user", "save.dat"))).To(Equal("progress"))
			leftovers, _ := filepath.Glob(filepath.Join(tmp, "eden-extract-*"))
			Expect(leftovers).To(BeEmpty())
			Expect(rec.statuses[len(rec.statuses)-1]).To(HavePrefix("Installation failed"))
		})

		It("puts the previous install back when the channel folder cannot be replaced", func() {
			// a plain file where the channel folder belongs cannot be backed up as a directory
			writeFile(dir, "not a folder", 0644)
			writeZip(zip, map[string]entry{"eden-stable": {body: "#!/bin/sh\n"}})

			result, err := o.InstallWithResult(ctx, artifact(zip, "0.0.4", stable), types.InstallOptions{}, nil, nil)
			Expect(errors.Is(err, installer.ErrPlacementFailed)).To(BeTrue())
			Expect(result.States).To(Equal([]string{"Validating", "Unpacking", "Placing", "CleaningUp", "Failed"}))

			Expect(readFile(dir)).To(Equal("not a folder"))
			backups, _ := filepath.Glob(filepath.Join(root, "Eden-Release.backup-*"))
			Expect(backups).To(BeEmpty())
			leftovers, _ := filepath.Glob(filepath.Join(tmp, "eden-extract-*"))
			Expect(leftovers).To(BeEmpty())
			Expect(reg.Record(stable)).To(BeNil())
		})

		It("rejects a corrupt archive before touching the install", func() {
			writeFile(filepath.Join(dir, "eden-stable"), "old build", 0755)
			writeFile(zip, "PK\x03\x04 truncated", 0644)

			result, err := o.InstallWithResult(ctx, artifact(zip, "0.0.4", stable), types.InstallOptions{}, nil, nil)
			Expect(installer.KindOf(err)).To(Equal(installer.KindValidationFailed))
			Expect(result.States).To(Equal([]string{"Validating", "CleaningUp", "Failed"}))
			Expect(readFile(filepath.Join(dir, "eden-stable"))).To(Equal("old build"))
		})

		It("fails on a checksum mismatch", func() {
			writeZip(zip, map[string]entry{"eden-stable": {body: "#!/bin/sh\n"}})
			a := types.NewUpdateArtifact(zip, types.UpdateInfo{Version: "0.0.3", Checksum: "sha256:" + hex.EncodeToString(make([]byte, 32))})

			err := o.Install(ctx, a, types.InstallOptions{}, nil, nil)
			Expect(installer.KindOf(err)).To(Equal(installer.KindValidationFailed))
			Expect(dir).NotTo(BeADirectory())
		})

		It("accepts a matching checksum", func() {
			writeZip(zip, map[string]entry{"eden-stable": {body: "#!/bin/sh\n"}})
			data, err := os.ReadFile(zip)
			Expect(err).NotTo(HaveOccurred())
			sum := sha256.Sum256(data)
			a := types.NewUpdateArtifact(zip, types.UpdateInfo{Version: "0.0.3", Checksum: "sha256:" + hex.EncodeToString(sum[:])})

			Expect(o.Install(ctx, a, types.InstallOptions{}, nil, nil)).To(Succeed())
		})

		It("fails when the declared size does not match", func() {
			writeZip(zip, map[string]entry{"eden-stable": {body: "#!/bin/sh\n"}})
			a := types.NewUpdateArtifact(zip, types.UpdateInfo{Version: "0.0.3", FileSize: 1 << 30})

			err := o.Install(ctx, a, types.InstallOptions{}, nil, nil)
			Expect(installer.KindOf(err)).To(Equal(installer.KindValidationFailed))
			Expect(err.Error()).To(ContainSubstring("incomplete"))
		})

		It("refuses to install without enough disk space", func() {
			o = newOrchestrator("linux", installer.WithFreeSpace(func(string) (uint64, error) { return 10, nil }))
			writeZip(zip, map[string]entry{"eden-stable": {body: "#!/bin/sh\necho a larger payload\n"}})

			err := o.Install(ctx, artifact(zip, "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(errors.Is(err, installer.ErrInsufficientDiskSpace)).To(BeTrue())
			Expect(err.Error()).To(HavePrefix("Insufficient disk space. Required: "))
			Expect(err.Error()).To(ContainSubstring("Available: "))
			Expect(dir).NotTo(BeADirectory())
		})

		It("reports a missing artifact", func() {
			err := o.Install(ctx, artifact(filepath.Join(work, "gone.zip"), "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(errors.Is(err, installer.ErrArtifactNotFound)).To(BeTrue())
		})

		It("creates a shortcut to the installed executable", func() {
			shortcuts := &fakeRegistrar{}
			o = newOrchestrator("linux", installer.WithShortcuts(shortcuts))
			writeZip(zip, map[string]entry{"eden-stable": {body: "#!/bin/sh\n"}})

			result, err := o.InstallWithResult(ctx, artifact(zip, "0.0.3", stable), types.InstallOptions{CreateShortcuts: true}, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.States).To(ContainElement("ShortcutSetup"))
			Expect(shortcuts.created).To(HaveLen(1))
			Expect(shortcuts.created[0].Executable).To(Equal(filepath.Join(dir, "eden-stable")))
			Expect(shortcuts.created[0].Name).To(Equal("Eden"))
		})

		It("does not fail the install when the shortcut cannot be created", func() {
			o = newOrchestrator("linux", installer.WithShortcuts(&fakeRegistrar{err: errors.New("read-only desktop")}))
			writeZip(zip, map[string]entry{"eden-stable": {body: "#!/bin/sh\n"}})

			Expect(o.Install(ctx, artifact(zip, "0.0.3", stable), types.InstallOptions{CreateShortcuts: true}, nil, nil)).To(Succeed())
		})
	})

	Context("installing an AppImage", func() {
		It("replaces the channel folder with the single binary", func() {
			o := newOrchestrator("linux")
			dir := filepath.Join(root, "Eden-Nightly")
			writeFile(filepath.Join(dir, "libold.so"), "old", 0644)
			image := filepath.Join(work, "Eden-nightly.AppImage")
			writeFile(image, "\x7fELF\x02\x01\x01appimage payload", 0644)

			result, err := o.InstallWithResult(ctx, artifact(image, "v0.0.4-nightly", nightly), types.InstallOptions{}, rec.onProgress, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Variant).To(Equal(types.VariantLinuxAppImage))
			Expect(result.States).NotTo(ContainElement("Unpacking"))

			exe := filepath.Join(dir, "eden-nightly")
			Expect(result.ExecutablePath).To(Equal(exe))
			info, err := os.Stat(exe)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0755)))
			Expect(filepath.Join(dir, "libold.so")).NotTo(BeAnExistingFile())
			rec.expectMonotonic()
			Expect(rec.last()).To(Equal(1.0))
		})
	})

	Context("on macOS", func() {
		var (
			o   *installer.Orchestrator
			dir string
			dmg string
		)

		BeforeEach(func() {
			o = newOrchestrator("darwin")
			dir = filepath.Join(root, "Eden-Release")
			dmg = filepath.Join(work, "Eden-macOS.dmg")
			writeDiskImage(dmg)
		})

		It("copies the bundle out of the disk image and unmounts it", func() {
			writeBundle(mounter.Root, "Eden")
			Expect(os.Symlink("/Applications", filepath.Join(mounter.Root, "Applications"))).To(Succeed())

			result, err := o.InstallWithResult(ctx, artifact(dmg, "0.0.3", stable), types.InstallOptions{}, rec.onProgress, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Variant).To(Equal(types.VariantMacDiskImage))
			Expect(result.ExecutablePath).To(Equal(filepath.Join(dir, "Eden.app", "Contents", "MacOS", "Eden")))
			Expect(filepath.Join(dir, "Eden.app", "Contents", "Info.plist")).To(BeARegularFile())
			Expect(mounter.Mounts).To(Equal(1))
			Expect(mounter.Unmounts).To(Equal(1))
			Expect(mounter.Mounted()).To(BeFalse())
			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.3"))
			rec.expectMonotonic()
		})

		It("fails validation and unmounts exactly once when no bundle matches", func() {
			writeBundle(mounter.Root, "Installer")

			result, err := o.InstallWithResult(ctx, artifact(dmg, "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(installer.KindOf(err)).To(Equal(installer.KindValidationFailed))
			Expect(result.States).To(Equal([]string{"Validating", "Unpacking", "CleaningUp", "Failed"}))
			Expect(mounter.Unmounts).To(Equal(1))
			Expect(mounter.Mounted()).To(BeFalse())
			Expect(dir).NotTo(BeADirectory())
		})

		It("reports a mount failure as a platform error", func() {
			mounter.MountErr = errors.New("hdiutil: attach failed")

			err := o.Install(ctx, artifact(dmg, "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(installer.KindOf(err)).To(Equal(installer.KindPlatformOperationFailed))
			Expect(mounter.Unmounts).To(BeZero())
		})

		It("rejects a file without a disk image trailer", func() {
			writeFile(dmg, "not a disk image, just some bytes", 0644)

			err := o.Install(ctx, artifact(dmg, "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(installer.KindOf(err)).To(Equal(installer.KindValidationFailed))
			Expect(mounter.Mounts).To(BeZero())
		})

		It("installs a zipped bundle and preserves user data", func() {
			writeFile(filepath.Join(dir, "Eden.app", "Contents", "MacOS", "Eden"), "old", 0755)
			writeFile(filepath.Join(dir, "user", "config.ini"), "[ui]", 0644)
			zip := filepath.Join(work, "Eden-macOS.zip")
			writeZip(zip, map[string]entry{
				"Eden.app/Contents/Info.plist": {body: "<plist></plist>"},
				"Eden.app/Contents/MacOS/Eden": {body: "new build"},
			})

			result, err := o.InstallWithResult(ctx, artifact(zip, "0.0.4", stable), types.InstallOptions{}, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Variant).To(Equal(types.VariantMacArchive))

			exe := filepath.Join(dir, "Eden.app", "Contents", "MacOS", "Eden")
			Expect(readFile(exe)).To(Equal("new build"))
			info, err := os.Stat(exe)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm() & 0111).NotTo(BeZero())
			Expect(readFile(filepath.Join(dir, "user", "config.ini"))).To(Equal("[ui]"))
		})
	})

	Context("on Windows", func() {
		It("unwraps a portable zip", func() {
			o := newOrchestrator("windows")
			zip := filepath.Join(work, "Eden-Windows.zip")
			writeZip(zip, map[string]entry{
				"Eden-Windows/eden.exe":               {body: "MZ"},
				"Eden-Windows/Qt6Core.dll":            {body: "MZ"},
				"Eden-Windows/platforms/qwindows.dll": {body: "MZ"},
				"Eden-Windows/licenses/LICENSE.txt":   {body: "GPL"},
			})

			result, err := o.InstallWithResult(ctx, artifact(zip, "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Variant).To(Equal(types.VariantWindowsArchive))
			Expect(result.ExecutablePath).To(Equal(filepath.Join(root, "Eden-Release", "eden.exe")))
			Expect(filepath.Join(root, "Eden-Release", "platforms", "qwindows.dll")).To(BeARegularFile())
		})

		It("hands an installer to the system", func() {
			o := newOrchestrator("windows")
			setup := filepath.Join(work, "Eden-Setup.exe")
			writeFile(setup, "MZ setup", 0644)

			result, err := o.InstallWithResult(ctx, artifact(setup, "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(types.InstallStatusHandedOff))
			Expect(pkgs.Calls()).To(HaveLen(1))
			Expect(filepath.Join(root, "Eden-Release")).NotTo(BeADirectory())

			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.3"))
			Expect(reg.Record(stable)).NotTo(BeNil())
			Expect(reg.Record(stable).HandedOff).To(BeTrue())
			available, err := reg.IsUpdateAvailable(ctx, stable, "0.0.3")
			Expect(err).NotTo(HaveOccurred())
			Expect(available).To(BeFalse())
		})
	})

	Context("on Android", func() {
		var (
			o   *installer.Orchestrator
			apk string
		)

		BeforeEach(func() {
			o = newOrchestrator("android")
			apk = filepath.Join(work, "Eden-Android.apk")
			writeZip(apk, map[string]entry{"AndroidManifest.xml": {body: "<manifest/>"}})
		})

		It("hands the package off and records it", func() {
			a := types.NewUpdateArtifact(apk, types.UpdateInfo{Version: "0.0.3", DownloadURL: "https://example.com/Eden-Android.apk"})
			result, err := o.InstallWithResult(ctx, a, types.InstallOptions{}, rec.onProgress, rec.onStatus)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Status).To(Equal(types.InstallStatusHandedOff))
			Expect(result.States).To(Equal([]string{"Validating", "HandingOff", "CleaningUp", "Done"}))
			Expect(pkgs.Calls()).To(HaveLen(1))
			handed := pkgs.Calls()[0]
			Expect(handed).To(HavePrefix(cacheDir))
			Expect(reg.ArtifactPath(stable)).To(Equal(handed))
			Expect(reg.Record(stable).ExecutablePath).To(Equal(platform.DefaultPackageID))
			Expect(reg.Record(stable).Version).To(Equal("0.0.3"))
			rec.expectMonotonic()
			Expect(rec.last()).To(Equal(1.0))
		})

		It("refuses nightly builds unless allowed", func() {
			err := o.Install(ctx, artifact(apk, "nightly", nightly), types.InstallOptions{}, nil, nil)
			Expect(errors.Is(err, installer.ErrUnsupportedArtifactType)).To(BeTrue())
			Expect(pkgs.Calls()).To(BeEmpty())

			o = newOrchestrator("android", installer.WithAllowAndroidNightly(true))
			Expect(o.Install(ctx, artifact(apk, "nightly", nightly), types.InstallOptions{}, nil, nil)).To(Succeed())
		})

		It("reports a rejected hand-off", func() {
			pkgs.HandOffErr = errors.New("no activity found")

			err := o.Install(ctx, artifact(apk, "0.0.3", stable), types.InstallOptions{}, nil, nil)
			Expect(installer.KindOf(err)).To(Equal(installer.KindPlatformOperationFailed))
			Expect(reg.Record(stable)).To(BeNil())
		})
	})

	It("rejects an APK on a desktop host before changing anything", func() {
		o := newOrchestrator("linux")
		apk := filepath.Join(work, "Eden-Android.apk")
		writeZip(apk, map[string]entry{"AndroidManifest.xml": {body: "<manifest/>"}})

		result, err := o.InstallWithResult(ctx, artifact(apk, "0.0.3", stable), types.InstallOptions{}, nil, nil)
		Expect(errors.Is(err, installer.ErrUnsupportedArtifactType)).To(BeTrue())
		Expect(result.States).To(Equal([]string{"Validating", "CleaningUp", "Failed"}))
		Expect(filepath.Join(root, "Eden-Release")).NotTo(BeADirectory())
		Expect(pkgs.Calls()).To(BeEmpty())
	})

	It("serializes installs of a channel and lets other channels proceed", func() {
		release := make(chan struct{})
		entered := make(chan struct{})
		var calls atomic.Int32
		o := newOrchestrator("linux", installer.WithFreeSpace(func(string) (uint64, error) {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
			}
			return 1 << 40, nil
		}))

		stableZip := filepath.Join(work, "stable.zip")
		nightlyZip := filepath.Join(work, "nightly.zip")
		writeZip(stableZip, map[string]entry{"eden-stable": {body: "#!/bin/sh\n"}})
		writeZip(nightlyZip, map[string]entry{"eden-nightly": {body: "#!/bin/sh\n"}})

		firstCtx, cancelFirst := context.WithCancel(ctx)
		first := make(chan error, 1)
		go func() {
			first <- o.Install(firstCtx, artifact(stableZip, "0.0.3", stable), types.InstallOptions{}, nil, nil)
		}()
		Eventually(entered).Should(BeClosed())

		Expect(o.Install(ctx, artifact(nightlyZip, "nightly", nightly), types.InstallOptions{}, nil, nil)).To(Succeed())

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := o.Install(waitCtx, artifact(stableZip, "0.0.3", stable), types.InstallOptions{}, nil, nil)
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		Expect(installer.KindOf(err)).To(BeEmpty())

		// a started install finishes even when its caller gives up
		cancelFirst()
		close(release)
		Eventually(first).Should(Receive(BeNil()))
		Expect(filepath.Join(root, "Eden-Release", "eden-stable")).To(BeARegularFile())
	})
})
