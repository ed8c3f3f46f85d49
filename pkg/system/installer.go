package system

import (
	"archive/zip"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/flanksource/eden-updater/pkg/classify"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// PackageInstaller hands an artifact over to the operating system's own installer.
// A nil error means the hand-off was accepted, not that installation has finished.
type PackageInstaller interface {
	Validate(artifactPath string) error
	HandOff(ctx context.Context, artifactPath string) error
}

// GetSystemInstallerType returns the type of system installer
func GetSystemInstallerType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".apk":
		return "android_package"
	case ".msi":
		return "windows_installer"
	case ".exe":
		return "windows_setup"
	default:
		return "unknown"
	}
}

// ForPlatform returns the package hand-off for hosts that have one
func ForPlatform(p platform.Platform, runner shell.Runner) (PackageInstaller, bool) {
	switch {
	case p.IsAndroid():
		return &AndroidInstaller{runner: runner}, true
	case p.IsWindows():
		return &WindowsInstaller{runner: runner}, true
	}
	return nil, false
}

// AndroidInstaller opens an APK with the package installer activity
type AndroidInstaller struct {
	runner shell.Runner
}

func NewAndroidInstaller(runner shell.Runner) *AndroidInstaller {
	return &AndroidInstaller{runner: runner}
}

// Validate checks the APK is a readable zip carrying a manifest
func (a *AndroidInstaller) Validate(apkPath string) error {
	r, err := zip.OpenReader(apkPath)
	if err != nil {
		return fmt.Errorf("%s is not a valid APK: %w", filepath.Base(apkPath), err)
	}
	defer func() { _ = r.Close() }()

	if !lo.ContainsBy(r.File, func(f *zip.File) bool { return f.Name == "AndroidManifest.xml" }) {
		return fmt.Errorf("%s is not a valid APK: AndroidManifest.xml is missing", filepath.Base(apkPath))
	}
	return nil
}

func (a *AndroidInstaller) HandOff(ctx context.Context, apkPath string) error {
	abs, err := filepath.Abs(apkPath)
	if err != nil {
		return err
	}
	_, err = a.runner.Run(ctx, "am", "start",
		"-a", "android.intent.action.VIEW",
		"-d", "file://"+filepath.ToSlash(abs),
		"-t", "application/vnd.android.package-archive",
		"--grant-read-uri-permission")
	if err != nil {
		return fmt.Errorf("failed to open package installer for %s: %w", filepath.Base(apkPath), err)
	}
	log.Infof("Handed %s to the Android package installer", filepath.Base(apkPath))
	return nil
}

// WindowsInstaller starts an .msi or setup .exe and leaves it running
type WindowsInstaller struct {
	runner shell.Runner
}

func NewWindowsInstaller(runner shell.Runner) *WindowsInstaller {
	return &WindowsInstaller{runner: runner}
}

func (w *WindowsInstaller) Validate(installerPath string) error {
	magic, err := classify.ReadMagic(installerPath)
	if err != nil {
		return err
	}
	switch GetSystemInstallerType(installerPath) {
	case "windows_installer":
		// MSI files are OLE compound documents
		if len(magic) < 4 || magic[0] != 0xd0 || magic[1] != 0xcf || magic[2] != 0x11 || magic[3] != 0xe0 {
			return fmt.Errorf("%s is not a valid Windows installer package", filepath.Base(installerPath))
		}
	case "windows_setup":
		if classify.DetectMagic(magic) != classify.MagicPE {
			return fmt.Errorf("%s is not a valid Windows executable", filepath.Base(installerPath))
		}
	default:
		return fmt.Errorf("unsupported installer type: %s", filepath.Ext(installerPath))
	}
	return nil
}

func (w *WindowsInstaller) HandOff(ctx context.Context, installerPath string) error {
	var err error
	if GetSystemInstallerType(installerPath) == "windows_installer" {
		err = w.runner.Start("msiexec", "/i", installerPath, "/passive")
	} else {
		err = w.runner.Start(installerPath)
	}
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", filepath.Base(installerPath), err)
	}
	log.Infof("Started Windows installer %s", filepath.Base(installerPath))
	return nil
}
