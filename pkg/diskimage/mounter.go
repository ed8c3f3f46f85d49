package diskimage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/flanksource/eden-updater/pkg/utils"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Mounter attaches a disk image and exposes its root directory
type Mounter interface {
	Mount(ctx context.Context, imagePath string) (string, error)
	Unmount(ctx context.Context, mountRoot string) error
}

// MountError is returned when every attach strategy failed
type MountError struct {
	Image string
	Err   error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("failed to mount %s: %v", filepath.Base(e.Image), e.Err)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// attach strategies, from strictest to most permissive
var attachStrategies = []struct {
	name  string
	flags []string
}{
	{"read-only", []string{"-nobrowse", "-readonly", "-quiet"}},
	{"read-write", []string{"-nobrowse", "-quiet"}},
	{"verbose", []string{"-nobrowse", "-readonly", "-verbose"}},
}

// Hdiutil mounts disk images with the macOS hdiutil tool
type Hdiutil struct {
	runner   shell.Runner
	attempts int
	delay    time.Duration
	tmpDir   string
}

type Option func(*Hdiutil)

// WithAttempts bounds the number of detach attempts
func WithAttempts(n int) Option {
	return func(h *Hdiutil) {
		if n > 0 {
			h.attempts = n
		}
	}
}

// WithRetryDelay sets the fixed delay between attach and detach attempts
func WithRetryDelay(d time.Duration) Option {
	return func(h *Hdiutil) {
		h.delay = d
	}
}

// WithTmpDir sets where mount points are created
func WithTmpDir(dir string) Option {
	return func(h *Hdiutil) {
		h.tmpDir = dir
	}
}

func NewHdiutil(runner shell.Runner, opts ...Option) *Hdiutil {
	h := &Hdiutil{
		runner:   runner,
		attempts: 3,
		delay:    1500 * time.Millisecond,
		tmpDir:   os.TempDir(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hdiutil) policy(ctx context.Context, retries int) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(h.delay), uint64(retries)), ctx)
}

// Mount attaches imagePath at a fresh mount point, escalating through the attach strategies
func (h *Hdiutil) Mount(ctx context.Context, imagePath string) (string, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return "", &MountError{Image: imagePath, Err: err}
	}
	if err := os.MkdirAll(h.tmpDir, 0755); err != nil {
		return "", &MountError{Image: imagePath, Err: err}
	}
	mountPoint, err := os.MkdirTemp(h.tmpDir, "eden-dmg-")
	if err != nil {
		return "", &MountError{Image: imagePath, Err: err}
	}

	var errs *multierror.Error
	attempt := 0
	operation := func() error {
		strategy := attachStrategies[attempt]
		attempt++
		args := append([]string{"attach"}, strategy.flags...)
		args = append(args, "-mountpoint", mountPoint, imagePath)
		if _, err := h.runner.Run(ctx, "hdiutil", args...); err != nil {
			log.Warnf("hdiutil attach (%s) of %s failed: %v", strategy.name, filepath.Base(imagePath), err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", strategy.name, err))
			return err
		}
		log.Debugf("Mounted %s at %s (%s)", filepath.Base(imagePath), utils.LogPath(mountPoint), strategy.name)
		return nil
	}

	if err := backoff.Retry(operation, h.policy(ctx, len(attachStrategies)-1)); err != nil {
		_ = os.Remove(mountPoint)
		if errs == nil {
			errs = multierror.Append(errs, err)
		}
		return "", &MountError{Image: imagePath, Err: errs.ErrorOrNil()}
	}
	return mountPoint, nil
}

// Unmount detaches mountRoot, gracefully first and then forced
func (h *Hdiutil) Unmount(ctx context.Context, mountRoot string) error {
	if mountRoot == "" {
		return nil
	}
	attempt := 0
	operation := func() error {
		args := []string{"detach", mountRoot}
		if attempt > 0 {
			args = append(args, "-force")
		}
		attempt++
		_, err := h.runner.Run(ctx, "hdiutil", args...)
		if err != nil {
			log.Debugf("hdiutil %s failed: %v", strings.Join(args, " "), err)
		}
		return err
	}

	if err := backoff.Retry(operation, h.policy(ctx, h.attempts-1)); err != nil {
		return fmt.Errorf("failed to detach %s after %d attempts: %w", utils.LogPath(mountRoot), attempt, err)
	}
	if err := os.Remove(mountRoot); err != nil && !os.IsNotExist(err) {
		log.Debugf("Leaving mount point %s: %v", utils.LogPath(mountRoot), err)
	}
	return nil
}
