package cmd

import (
	"context"
	"fmt"

	"github.com/flanksource/clicky"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/version"
)

// SetVersion records the build information shown by --version
func SetVersion(v, commit, date, dirty string) {
	if dirty == "true" {
		commit += "-dirty"
	}
	rootCmd.Version = fmt.Sprintf("%s (%s, built %s)", v, commit, date)
}

type StatusOptions struct {
	Channels []string `json:"channels,omitempty" arg:"positional"`
}

// ChannelStatus is what the updater knows about one channel's install
type ChannelStatus struct {
	Channel    types.Channel `json:"channel" pretty:"label=Channel"`
	Version    string        `json:"version" pretty:"label=Version"`
	Source     string        `json:"source,omitempty" pretty:"label=Source"`
	Executable string        `json:"executable,omitempty" pretty:"label=Executable"`
	Directory  string        `json:"directory" pretty:"label=Directory"`
}

func init() {
	clicky.AddCommand(rootCmd, StatusOptions{}, func(opts StatusOptions) (any, error) {
		return GetStatus(context.Background(), opts.Channels...)
	})
}

// GetStatus looks up the installed version of each channel, or every channel when none are named
func GetStatus(ctx context.Context, names ...string) ([]ChannelStatus, error) {
	channels := types.Channels
	if len(names) > 0 {
		channels = nil
		for _, name := range names {
			ch, err := types.ParseChannel(name)
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		}
	}

	u, err := newUpdater()
	if err != nil {
		return nil, err
	}
	defer u.Close()

	var results []ChannelStatus
	for _, ch := range channels {
		status := ChannelStatus{
			Channel:   ch,
			Version:   version.NotInstalled,
			Directory: u.Registry().ChannelDir(ch),
		}
		if installed := u.Registry().Lookup(ctx, ch); installed != nil {
			if installed.Version != "" {
				status.Version = installed.Version
			} else {
				status.Version = "Unknown"
			}
			status.Source = string(installed.Source)
			status.Executable = installed.ExecutablePath
		}
		results = append(results, status)
	}
	return results, nil
}
