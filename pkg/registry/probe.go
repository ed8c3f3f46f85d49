package registry

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flanksource/eden-updater/pkg/shell"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/version"
	log "github.com/sirupsen/logrus"
)

var plistVersion = regexp.MustCompile(`<key>CFBundleShortVersionString</key>\s*<string>([^<]+)</string>`)

// Probe derives a version from an installed executable when nothing was recorded:
// bundle metadata, then `--version` output, then the marker file, then the file name.
// It returns "" when every probe fails.
func (r *Registry) Probe(ctx context.Context, ch types.Channel, exe string) string {
	logger := log.WithFields(log.Fields{"channel": ch, "exe": exe})
	probes := []struct {
		name string
		fn   func() string
	}{
		{"bundle", func() string { return r.probeBundle(ctx, exe) }},
		{"--version", func() string { return r.probeOutput(ctx, exe) }},
		{"marker", func() string { return r.probeMarker(ch) }},
		{"filename", func() string { return r.probeFilename(ch, exe) }},
	}
	for _, p := range probes {
		if v := p.fn(); v != "" {
			logger.Debugf("Probed version %s via %s", v, p.name)
			return v
		}
	}
	return ""
}

func (r *Registry) probeBundle(ctx context.Context, exe string) string {
	switch {
	case r.profile.Platform.IsDarwin():
		plist := infoPlistFor(exe)
		if plist == "" {
			return ""
		}
		data, err := os.ReadFile(plist)
		if err != nil {
			return ""
		}
		if m := plistVersion.FindSubmatch(data); len(m) == 2 {
			return version.Normalize(string(m[1]))
		}
	case r.profile.Platform.IsWindows():
		ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
		defer cancel()
		out, err := shell.Output(ctx, r.runner, "powershell", "-NoProfile", "-Command",
			"(Get-Item '"+strings.ReplaceAll(exe, "'", "''")+"').VersionInfo.ProductVersion")
		if err != nil || out == "" {
			return ""
		}
		if v, err := version.ExtractFromOutput(out, ""); err == nil {
			return v
		}
	}
	return ""
}

// infoPlistFor walks up from an executable inside X.app/Contents/MacOS to X.app/Contents/Info.plist
func infoPlistFor(exe string) string {
	macos := filepath.Dir(exe)
	if filepath.Base(macos) != "MacOS" {
		return ""
	}
	return filepath.Join(filepath.Dir(macos), "Info.plist")
}

func (r *Registry) probeOutput(ctx context.Context, exe string) string {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	res, err := r.runner.Run(ctx, exe, "--version")
	if err != nil {
		log.Debugf("%s --version failed: %v", exe, err)
		return ""
	}
	v, err := version.ExtractFromOutput(res.Stdout+"\n"+res.Stderr, "")
	if err != nil {
		return ""
	}
	return v
}

func (r *Registry) probeMarker(ch types.Channel) string {
	data, err := os.ReadFile(filepath.Join(r.ChannelDir(ch), MarkerFile))
	if err != nil {
		return ""
	}
	return version.Normalize(strings.TrimSpace(string(data)))
}

func (r *Registry) probeFilename(ch types.Channel, exe string) string {
	if v, ok := version.FromFilename(exe); ok {
		return v
	}
	if artifact := r.ArtifactPath(ch); artifact != "" {
		if v, ok := version.FromFilename(artifact); ok {
			return v
		}
	}
	return ""
}
