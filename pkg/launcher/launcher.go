package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/flanksource/eden-updater/pkg/filesystem"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/registry"
	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/flanksource/eden-updater/pkg/shortcut"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// ErrNotInstalled is returned when a channel has nothing to launch
var ErrNotInstalled = errors.New("not installed")

const (
	MethodProcess      = "process"
	MethodOpenArtifact = "open-artifact"
)

// Launched describes a successful launch
type Launched struct {
	Channel types.Channel
	// Target is the executable path or package id that was started
	Target string
	Method string
}

// Dispatcher starts an installed channel
type Dispatcher struct {
	registry *registry.Registry
	profile  platform.Profile
	gateway  *filesystem.Gateway
	runner   shell.Runner
	open     func(path string) error
}

type Option func(*Dispatcher)

func WithRunner(r shell.Runner) Option {
	return func(d *Dispatcher) { d.runner = r }
}

// WithOpener replaces the desktop "open this file" handler used as the last resort on package hosts
func WithOpener(fn func(path string) error) Option {
	return func(d *Dispatcher) { d.open = fn }
}

func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		profile:  reg.Profile(),
		gateway:  filesystem.New(reg.Profile()),
		open:     open.Start,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.runner == nil {
		d.runner = shell.NewExecRunner(0)
	}
	return d
}

// Launch starts the installed executable of a channel as a detached process, or the installed
// package through the first intent that the package manager accepts
func (d *Dispatcher) Launch(ctx context.Context, ch types.Channel) (*Launched, error) {
	installed := d.registry.Lookup(ctx, ch)
	if installed == nil {
		return nil, fmt.Errorf("eden %s is %w", ch, ErrNotInstalled)
	}
	if d.profile.PackageBased {
		return d.launchPackage(ctx, ch, installed)
	}
	return d.launchProcess(ch, installed)
}

func (d *Dispatcher) launchProcess(ch types.Channel, installed *registry.Installed) (*Launched, error) {
	exe := installed.ExecutablePath
	if exe == "" {
		found, err := d.gateway.FindInstalledExecutable(d.registry.ChannelDir(ch), ch.BinaryName())
		if err != nil {
			return nil, fmt.Errorf("eden %s is %w: %v", ch, ErrNotInstalled, err)
		}
		exe = found
	}
	if _, err := os.Stat(exe); err != nil {
		return nil, fmt.Errorf("executable %s no longer exists, eden %s is %w", utils.LogPath(exe), ch, ErrNotInstalled)
	}

	name, args := exe, []string(nil)
	if bundle := shortcut.BundleOf(exe); bundle != "" && d.profile.Platform.IsDarwin() {
		name, args = "open", []string{"-n", bundle}
	}
	log.WithFields(log.Fields{"channel": ch, "exe": exe}).Infof("Launching eden %s", installed.Version)
	if err := d.runner.Start(name, args...); err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", utils.LogPath(exe), err)
	}
	return &Launched{Channel: ch, Target: exe, Method: MethodProcess}, nil
}

func (d *Dispatcher) launchPackage(ctx context.Context, ch types.Channel, installed *registry.Installed) (*Launched, error) {
	pkg := installed.ExecutablePath
	if pkg == "" {
		pkg = d.profile.PackageID
	}
	logger := log.WithFields(log.Fields{"channel": ch, "package": pkg})

	var attempts *multierror.Error
	for _, strategy := range intentStrategies {
		if err := strategy.launch(ctx, d.runner, pkg); err != nil {
			logger.Debugf("Launch via %s failed: %v", strategy.name, err)
			attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", strategy.name, err))
			continue
		}
		logger.Infof("Launched via %s", strategy.name)
		if err := d.registry.RecordLaunch(ch, pkg); err != nil {
			logger.Warnf("Failed to remember launched package: %v", err)
		}
		return &Launched{Channel: ch, Target: pkg, Method: strategy.name}, nil
	}

	artifact := d.registry.ArtifactPath(ch)
	if artifact != "" {
		if _, err := os.Stat(artifact); err == nil {
			err := d.open(artifact)
			if err == nil {
				logger.Infof("Opened downloaded package %s", utils.LogPath(artifact))
				return &Launched{Channel: ch, Target: artifact, Method: MethodOpenArtifact}, nil
			}
			attempts = multierror.Append(attempts, fmt.Errorf("open %s: %w", artifact, err))
		}
	}
	logger.Warnf("All launch strategies failed: %v", attempts)
	return nil, fmt.Errorf("could not start %s. Open Eden from the app drawer, or reinstall it if it was removed: %w", pkg, attempts.ErrorOrNil())
}

type intentStrategy struct {
	name   string
	launch func(ctx context.Context, r shell.Runner, pkg string) error
}

// MainActivity is the launcher activity of the emulator package
const MainActivity = "org.yuzu.yuzu_emu.ui.main.MainActivity"

var intentStrategies = []intentStrategy{
	{"resolve-activity", func(ctx context.Context, r shell.Runner, pkg string) error {
		out, err := shell.Output(ctx, r, "cmd", "package", "resolve-activity", "--brief", "-c", "android.intent.category.LAUNCHER", pkg)
		if err != nil {
			return err
		}
		component, _, ok := lo.FindLastIndexOf(strings.Split(out, "\n"), func(line string) bool {
			return strings.Contains(line, "/")
		})
		if !ok {
			return fmt.Errorf("no launcher activity in %q", out)
		}
		return amStart(ctx, r, "-n", strings.TrimSpace(component))
	}},
	{"explicit-activity", func(ctx context.Context, r shell.Runner, pkg string) error {
		return amStart(ctx, r, "-n", pkg+"/"+MainActivity)
	}},
	{"launcher-intent", func(ctx context.Context, r shell.Runner, pkg string) error {
		return amStart(ctx, r, "-a", "android.intent.action.MAIN", "-c", "android.intent.category.LAUNCHER", "-p", pkg)
	}},
	{"monkey", func(ctx context.Context, r shell.Runner, pkg string) error {
		res, err := r.Run(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
		if err != nil {
			return err
		}
		if strings.Contains(res.Stdout, "No activities found") {
			return errors.New(strings.TrimSpace(res.Stdout))
		}
		return nil
	}},
}

// amStart runs `am start`, which exits 0 even when the intent could not be resolved
func amStart(ctx context.Context, r shell.Runner, args ...string) error {
	res, err := r.Run(ctx, "am", append([]string{"start"}, args...)...)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(res.Stdout+"\n"+res.Stderr, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "Error") {
			return errors.New(strings.TrimSpace(line))
		}
	}
	return nil
}
