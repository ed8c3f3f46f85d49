package installer_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/flanksource/eden-updater/pkg/filesystem"
	"github.com/flanksource/eden-updater/pkg/installer"
	"github.com/flanksource/eden-updater/pkg/platform"
)

var _ = Describe("FindBundle", func() {
	var volume string

	BeforeEach(func() {
		volume = GinkgoT().TempDir()
	})

	It("prefers an exact name over a longer match", func() {
		writeBundle(volume, "Eden Nightly")
		writeBundle(filepath.Join(volume, "Extras"), "Eden")
		writeBundle(volume, "Uninstaller")

		found, err := installer.FindBundle(volume, "Eden", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(filepath.Join(volume, "Extras", "Eden.app")))
	})

	It("prefers the shallower of two equal names", func() {
		writeBundle(filepath.Join(volume, "a", "b"), "Eden")
		writeBundle(filepath.Join(volume, "z"), "Eden")

		found, err := installer.FindBundle(volume, "eden", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(Equal(filepath.Join(volume, "z", "Eden.app")))
	})

	It("tolerates small spelling differences", func() {
		writeBundle(volume, "Eden2")

		found, err := installer.FindBundle(volume, "Eden", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(found)).To(Equal("Eden2.app"))
	})

	It("does not search past the depth limit", func() {
		writeBundle(filepath.Join(volume, "a", "b", "c"), "Eden")

		_, err := installer.FindBundle(volume, "Eden", 3)
		Expect(err).To(HaveOccurred())

		found, err := installer.FindBundle(volume, "Eden", 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(HaveSuffix("Eden.app"))
	})

	It("ignores unrelated applications", func() {
		writeBundle(volume, "Installer")

		_, err := installer.FindBundle(volume, "Eden", 3)
		Expect(err).To(MatchError(ContainSubstring("no Eden application bundle")))
	})
})

var _ = Describe("ValidateBundle", func() {
	gw := filesystem.New(platform.ProfileFor(platform.Platform{OS: "darwin", Arch: "arm64"}))

	It("accepts a bundle with an executable", func() {
		bundle := writeBundle(GinkgoT().TempDir(), "Eden")
		Expect(installer.ValidateBundle(gw, bundle)).To(Succeed())
	})

	It("rejects a bundle without Contents/MacOS", func() {
		bundle := filepath.Join(GinkgoT().TempDir(), "Eden.app")
		writeFile(filepath.Join(bundle, "Contents", "Info.plist"), "<plist/>", 0644)
		Expect(installer.ValidateBundle(gw, bundle)).To(MatchError(ContainSubstring("Contents/MacOS")))
	})

	It("rejects a bundle whose binary is not executable", func() {
		bundle := writeBundle(GinkgoT().TempDir(), "Eden")
		Expect(os.Chmod(filepath.Join(bundle, "Contents", "MacOS", "Eden"), 0644)).To(Succeed())
		Expect(installer.ValidateBundle(gw, bundle)).To(MatchError(ContainSubstring("no executable")))
	})
})
