package installer

import (
	"github.com/flanksource/eden-updater/pkg/diskimage"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/registry"
	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/flanksource/eden-updater/pkg/shortcut"
	"github.com/flanksource/eden-updater/pkg/system"
	"github.com/flanksource/eden-updater/pkg/types"
)

// Option is a functional option for configuring the orchestrator
type Option func(*Orchestrator)

// WithInstallRoot sets the directory channel folders are created under
func WithInstallRoot(dir string) Option {
	return func(o *Orchestrator) {
		o.installRoot = dir
	}
}

// WithTmpDir sets where archives are staged and disk images are mounted
func WithTmpDir(dir string) Option {
	return func(o *Orchestrator) {
		o.tmpDir = dir
	}
}

// WithCacheDir sets where handed-off packages are kept for a later launch
func WithCacheDir(dir string) Option {
	return func(o *Orchestrator) {
		o.cacheDir = dir
	}
}

// WithPlatform overrides the host platform, selecting its profile
func WithPlatform(p platform.Platform) Option {
	return func(o *Orchestrator) {
		o.profile = platform.ProfileFor(p)
	}
}

// WithProfile replaces the host profile entirely
func WithProfile(p platform.Profile) Option {
	return func(o *Orchestrator) {
		o.profile = p
	}
}

// WithRunner sets the process runner used by every OS integration
func WithRunner(r shell.Runner) Option {
	return func(o *Orchestrator) {
		o.runner = r
	}
}

// WithMounter sets the disk image mounter
func WithMounter(m diskimage.Mounter) Option {
	return func(o *Orchestrator) {
		o.mounter = m
	}
}

// WithRegistry sets where successful installs are recorded
func WithRegistry(r *registry.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithPackageInstaller sets the OS installer artifacts are handed off to
func WithPackageInstaller(p system.PackageInstaller) Option {
	return func(o *Orchestrator) {
		o.packages = p
	}
}

// WithShortcuts sets the launcher entry registrar
func WithShortcuts(r shortcut.Registrar) Option {
	return func(o *Orchestrator) {
		o.shortcuts = r
	}
}

// WithProductName sets the name used to find bundles and label shortcuts
func WithProductName(name string) Option {
	return func(o *Orchestrator) {
		o.productName = name
	}
}

// WithBundleSearchDepth bounds how deep a mounted image is searched for the app bundle
func WithBundleSearchDepth(depth int) Option {
	return func(o *Orchestrator) {
		o.bundleDepth = depth
	}
}

// WithAllowAndroidNightly permits nightly installs on Android
func WithAllowAndroidNightly(allow bool) Option {
	return func(o *Orchestrator) {
		o.allowAndroidNightly = allow
	}
}

// WithDebug keeps staged files after the install for inspection
func WithDebug(debug bool) Option {
	return func(o *Orchestrator) {
		o.debug = debug
	}
}

// WithClassifier replaces the artifact classifier
func WithClassifier(c Classifier) Option {
	return func(o *Orchestrator) {
		o.classifier = c
	}
}

// WithFreeSpace replaces the free disk space query (useful for testing)
func WithFreeSpace(fn func(path string) (uint64, error)) Option {
	return func(o *Orchestrator) {
		o.freeSpace = fn
	}
}

// WithRunID replaces the generator for per-run identifiers (useful for testing)
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) {
		o.newRunID = fn
	}
}

// Classifier decides the artifact variant for a path
type Classifier interface {
	Classify(path string) types.Variant
}
