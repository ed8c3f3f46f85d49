package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/flanksource/clicky"
	"github.com/flanksource/commons/logger"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	checkManifest string
	checkRefresh  bool
)

// UpdateCheck is the outcome of comparing the newest release with the installed version
type UpdateCheck struct {
	Channel   types.Channel `json:"channel" pretty:"label=Channel"`
	Installed string        `json:"installed" pretty:"label=Installed"`
	Latest    string        `json:"latest" pretty:"label=Latest"`
	Available bool          `json:"available" pretty:"label=Update available"`
	URL       string        `json:"url,omitempty" pretty:"label=Download"`
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a newer release is available",
	Long: `Check whether a newer release is available for a channel.

Releases are read from a YAML manifest listing one entry per release:

  - version: 0.0.3
    channel: stable
    download_url: https://example.com/Eden-Linux-v0.0.3.AppImage
    file_size: 104857600

Results are cached per channel; use --refresh to read the manifest again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkManifest == "" {
			return fmt.Errorf("--manifest is required")
		}
		ch, err := selectedChannel()
		if err != nil {
			return err
		}
		u, err := newUpdater()
		if err != nil {
			return err
		}
		defer u.Close()

		ctx := context.Background()
		latest, available, err := u.CheckForUpdate(ctx, ch, checkRefresh, manifestFetcher(checkManifest))
		if err != nil && latest == nil {
			return err
		}
		if err != nil {
			logger.Warnf("Cannot compare %s with the installed version: %v", latest.Version, err)
		}

		installed := u.CurrentVersion(ctx, ch)
		if installed == "" {
			installed = version.NotInstalled
		}
		out, err := clicky.Format(UpdateCheck{
			Channel:   ch,
			Installed: installed,
			Latest:    latest.Version,
			Available: available,
			URL:       latest.DownloadURL,
		})
		if err != nil {
			return err
		}
		cmd.Println(out)
		return nil
	},
}

// manifestFetcher reads a release listing from disk and picks the newest release of the channel
func manifestFetcher(path string) func(ctx context.Context, ch types.Channel) (*types.UpdateInfo, error) {
	return func(ctx context.Context, ch types.Channel) (*types.UpdateInfo, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
		var releases []types.UpdateInfo
		if err := yaml.Unmarshal(data, &releases); err != nil {
			return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
		}
		return version.Latest(releases, ch)
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkManifest, "manifest", "", "YAML file listing available releases")
	checkCmd.Flags().BoolVar(&checkRefresh, "refresh", false, "Ignore cached release information")
}
