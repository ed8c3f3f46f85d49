package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flanksource/eden-updater/mock"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/prefs"
	"github.com/flanksource/eden-updater/pkg/registry"
	"github.com/flanksource/eden-updater/pkg/types"
)

func writeExecutable(path string) {
	Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
	Expect(os.WriteFile(path, []byte("#!/bin/sh\n"), 0755)).To(Succeed())
}

var _ = Describe("Registry", func() {
	var (
		ctx    context.Context
		root   string
		store  *prefs.MemoryStore
		runner *mock.Runner
		now    time.Time
		clock  = func() time.Time { return now }
		stable = types.ChannelStable
	)

	BeforeEach(func() {
		ctx = context.Background()
		root = GinkgoT().TempDir()
		store = prefs.NewMemoryStore()
		runner = mock.NewRunner()
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	Context("on a filesystem platform", func() {
		var (
			reg *registry.Registry
			exe string
		)

		BeforeEach(func() {
			profile := platform.ProfileFor(platform.Platform{OS: "linux", Arch: "amd64"})
			reg = registry.New(store, profile,
				registry.WithInstallRoot(root),
				registry.WithRunner(runner),
				registry.WithClock(clock),
				registry.WithProbeTimeout(time.Second))
			exe = filepath.Join(root, "Eden-Release", "eden-stable")
		})

		It("reports nothing when nothing is installed", func() {
			Expect(reg.Lookup(ctx, stable)).To(BeNil())
			Expect(reg.GetCurrentVersion(ctx, stable)).To(BeEmpty())
		})

		It("uses platform and channel scoped keys", func() {
			writeExecutable(exe)
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, exe)).To(Succeed())

			v, ok, _ := store.GetString("linux_installed_version_stable")
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal("0.0.3"))
			_, ok, _ = store.GetString("linux_install_metadata_stable")
			Expect(ok).To(BeTrue())
			_, ok, _ = store.GetString("linux_installed_version_nightly")
			Expect(ok).To(BeFalse())
		})

		It("returns the stored record while the executable exists", func() {
			writeExecutable(exe)
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3", DownloadURL: "https://example.com/eden"}, exe)).To(Succeed())

			installed := reg.Lookup(ctx, stable)
			Expect(installed).NotTo(BeNil())
			Expect(installed.Source).To(Equal(registry.SourceMetadata))
			Expect(installed.Version).To(Equal("0.0.3"))
			Expect(installed.ExecutablePath).To(Equal(exe))
			Expect(installed.Record.InstallDate).To(Equal(now))
			Expect(installed.Record.DownloadURL).To(Equal("https://example.com/eden"))
		})

		It("prefers the override over the record", func() {
			writeExecutable(exe)
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, exe)).To(Succeed())
			Expect(reg.SetOverride(stable, "9.9.9")).To(Succeed())

			installed := reg.Lookup(ctx, stable)
			Expect(installed.Source).To(Equal(registry.SourceOverride))
			Expect(installed.Version).To(Equal("9.9.9"))

			Expect(reg.SetOverride(stable, "")).To(Succeed())
			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.3"))
		})

		It("clears a record whose executable is gone", func() {
			writeExecutable(exe)
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, exe)).To(Succeed())
			Expect(os.Remove(exe)).To(Succeed())

			Expect(reg.Lookup(ctx, stable)).To(BeNil())
			Expect(reg.Record(stable)).To(BeNil())
		})

		It("keeps the record of a hand-off to a system installer", func() {
			Expect(reg.StoreHandOff(stable, types.UpdateInfo{Version: "0.0.3"}, "")).To(Succeed())

			installed := reg.Lookup(ctx, stable)
			Expect(installed).NotTo(BeNil())
			Expect(installed.Source).To(Equal(registry.SourceMetadata))
			Expect(installed.Record.HandedOff).To(BeTrue())
			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.3"))

			available, err := reg.IsUpdateAvailable(ctx, stable, "0.0.3")
			Expect(err).NotTo(HaveOccurred())
			Expect(available).To(BeFalse())
		})

		It("still clears a filesystem record without an executable", func() {
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, "")).To(Succeed())
			Expect(reg.GetCurrentVersion(ctx, stable)).To(BeEmpty())
			Expect(reg.Record(stable)).To(BeNil())
		})

		It("persists the record as yaml", func() {
			writeExecutable(exe)
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, exe)).To(Succeed())

			raw, ok, _ := store.GetString("linux_install_metadata_stable")
			Expect(ok).To(BeTrue())
			Expect(raw).To(MatchRegexp(`(?m)^version: "?0\.0\.3"?$`))
			Expect(raw).To(ContainSubstring("executable_path:"))
			Expect(raw).NotTo(HavePrefix("{"))
		})

		It("reads records written as json", func() {
			writeExecutable(exe)
			Expect(store.SetString("linux_install_metadata_stable",
				`{"version":"0.0.2","executable_path":"`+exe+`","install_date":"2026-02-01T00:00:00Z"}`)).To(Succeed())

			installed := reg.Lookup(ctx, stable)
			Expect(installed).NotTo(BeNil())
			Expect(installed.Source).To(Equal(registry.SourceMetadata))
			Expect(installed.Version).To(Equal("0.0.2"))
		})

		It("falls back to the legacy version when there is no record", func() {
			writeExecutable(exe)
			Expect(store.SetString("linux_installed_version_stable", "0.0.2")).To(Succeed())

			installed := reg.Lookup(ctx, stable)
			Expect(installed.Source).To(Equal(registry.SourceLegacy))
			Expect(installed.Version).To(Equal("0.0.2"))
			Expect(installed.ExecutablePath).To(Equal(exe))
		})

		It("ignores an unreadable record", func() {
			writeExecutable(exe)
			Expect(store.SetString("linux_install_metadata_stable", "{version: [0.0.3")).To(Succeed())
			Expect(store.SetString("linux_installed_version_stable", "0.0.2")).To(Succeed())
			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.2"))
		})

		Describe("probing", func() {
			BeforeEach(func() {
				writeExecutable(exe)
			})

			It("parses --version output", func() {
				runner.On(exe+" --version", "Eden 0.0.5 (abc123)\n")
				installed := reg.Lookup(ctx, stable)
				Expect(installed.Source).To(Equal(registry.SourceProbe))
				Expect(installed.Version).To(Equal("0.0.5"))
			})

			It("reads the version marker when the executable cannot report", func() {
				Expect(registry.WriteMarker(filepath.Join(root, "Eden-Release"), "v0.0.4")).To(Succeed())
				Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.4"))
				Expect(runner.CallsTo(exe + " --version")).To(Equal(1))
			})

			It("parses the remembered artifact file name last", func() {
				Expect(reg.SetArtifactPath(stable, "/downloads/Eden-Linux-v0.0.6-amd64.AppImage")).To(Succeed())
				Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.6"))
			})

			It("reports nothing when every probe fails", func() {
				Expect(reg.Lookup(ctx, stable)).To(BeNil())
			})
		})

		It("clears every layer", func() {
			writeExecutable(exe)
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, exe)).To(Succeed())
			Expect(reg.SetOverride(stable, "1.0.0")).To(Succeed())
			Expect(reg.SetArtifactPath(stable, "/tmp/eden.AppImage")).To(Succeed())

			Expect(reg.ClearVersionInfo(stable)).To(Succeed())
			for _, key := range []string{"install_metadata", "installed_version", "executable_path", "version_override", "artifact_path"} {
				_, ok, _ := store.GetString("linux_" + key + "_stable")
				Expect(ok).To(BeFalse(), key)
			}
		})

		It("reports whether a candidate is an update", func() {
			ok, err := reg.IsUpdateAvailable(ctx, stable, "0.0.3")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			writeExecutable(exe)
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, exe)).To(Succeed())
			ok, err = reg.IsUpdateAvailable(ctx, stable, "v0.0.3")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
			ok, _ = reg.IsUpdateAvailable(ctx, stable, "0.0.4")
			Expect(ok).To(BeTrue())
		})
	})

	Context("on macOS", func() {
		It("reads the bundle short version", func() {
			profile := platform.ProfileFor(platform.Platform{OS: "darwin", Arch: "arm64"})
			reg := registry.New(store, profile, registry.WithInstallRoot(root), registry.WithRunner(runner))
			contents := filepath.Join(root, "Eden-Release", "Eden.app", "Contents")
			writeExecutable(filepath.Join(contents, "MacOS", "Eden"))
			Expect(os.WriteFile(filepath.Join(contents, "Info.plist"), []byte(`<plist><dict>
	<key>CFBundleShortVersionString</key>
	<string>0.0.7</string>
</dict></plist>`), 0644)).To(Succeed())

			installed := reg.Lookup(ctx, stable)
			Expect(installed.Source).To(Equal(registry.SourceProbe))
			Expect(installed.Version).To(Equal("0.0.7"))
			Expect(installed.ExecutablePath).To(Equal(filepath.Join(contents, "MacOS", "Eden")))
		})
	})

	Context("on a package-based platform", func() {
		var profile platform.Profile

		BeforeEach(func() {
			profile = platform.ProfileFor(platform.Platform{OS: "android", Arch: "arm64"})
		})

		It("trusts a recent record without a presence checker", func() {
			reg := registry.New(store, profile, registry.WithClock(clock))
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, platform.DefaultPackageID)).To(Succeed())

			now = now.Add(10 * 24 * time.Hour)
			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.3"))

			now = now.Add(30 * 24 * time.Hour)
			Expect(reg.Lookup(ctx, stable)).To(BeNil())
			Expect(reg.Record(stable)).To(BeNil())
		})

		It("trusts an old record once the package has been launched", func() {
			reg := registry.New(store, profile, registry.WithClock(clock))
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, platform.DefaultPackageID)).To(Succeed())
			Expect(reg.RecordLaunch(stable, platform.DefaultPackageID)).To(Succeed())

			now = now.Add(90 * 24 * time.Hour)
			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.3"))
		})

		It("asks the presence checker when one is configured", func() {
			presence := mock.NewPresenceChecker(platform.DefaultPackageID)
			reg := registry.New(store, profile, registry.WithClock(clock), registry.WithPresenceChecker(presence))
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, platform.DefaultPackageID)).To(Succeed())

			installed := reg.Lookup(ctx, stable)
			Expect(installed.Source).To(Equal(registry.SourceMetadata))
			Expect(installed.ExecutablePath).To(Equal(platform.DefaultPackageID))

			presence.Set(platform.DefaultPackageID, false)
			Expect(reg.Lookup(ctx, stable)).To(BeNil())
		})

		It("falls back to heuristics when the presence checker fails", func() {
			presence := mock.NewPresenceChecker()
			presence.Err = errors.New("package manager unavailable")
			reg := registry.New(store, profile, registry.WithClock(clock), registry.WithPresenceChecker(presence))
			Expect(reg.StoreVersionInfo(stable, types.UpdateInfo{Version: "0.0.3"}, platform.DefaultPackageID)).To(Succeed())

			Expect(reg.GetCurrentVersion(ctx, stable)).To(Equal("0.0.3"))
			Expect(presence.Queries).To(BeNumerically(">", 0))
		})

		It("reports a present package with an unknown version", func() {
			presence := mock.NewPresenceChecker(platform.DefaultPackageID)
			reg := registry.New(store, profile, registry.WithPresenceChecker(presence))

			installed := reg.Lookup(ctx, stable)
			Expect(installed).NotTo(BeNil())
			Expect(installed.Source).To(Equal(registry.SourcePresence))
			Expect(installed.Version).To(BeEmpty())
		})
	})
})
