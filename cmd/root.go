package cmd

import (
	"fmt"
	"runtime"

	"github.com/flanksource/clicky"
	"github.com/flanksource/commons/logger"
	updater "github.com/flanksource/eden-updater"
	"github.com/flanksource/eden-updater/pkg/config"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/spf13/cobra"
)

var (
	installRoot  string
	tmpDir       string
	debug        bool
	osOverride   string
	archOverride string
	configFile   string
	channelName  string
	cfg          *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "eden-updater",
	Short: "Installs, tracks and launches Eden emulator builds",
	Long: `eden-updater installs downloaded Eden builds (AppImage, archives, disk images,
APKs and Windows installers) into per-channel folders, remembers the installed
version and launches it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Apply clicky flags after command line parsing
		clicky.Flags.UseFlags()

		platform.SetGlobalOverrides(osOverride, archOverride)

		config.SetPath(configFile)
		var err error
		if cfg, err = config.Global(); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		if cmd.Flags().Changed("os") || cmd.Flags().Changed("arch") {
			cfg.Platform = platform.Current()
		}
		if installRoot != "" {
			cfg.InstallRoot = installRoot
		}
		if tmpDir != "" {
			cfg.TmpDir = tmpDir
		}

		logger.V(3).Infof("Using %s (%s)", cfg.InstallRoot, cfg.Platform)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// newUpdater builds the updater for the loaded configuration; callers must Close it
func newUpdater() (*updater.Updater, error) {
	return updater.New(cfg, updater.WithDebug(debug))
}

func selectedChannel() (types.Channel, error) {
	return types.ParseChannel(channelName)
}

func init() {
	clicky.BindAllFlags(rootCmd.PersistentFlags(), "tasks", "!format")

	rootCmd.PersistentFlags().StringVar(&installRoot, "install-root", "", "Directory channel folders are installed under (default from config)")
	rootCmd.PersistentFlags().StringVar(&tmpDir, "tmp-dir", "", "Directory for staging and mount points")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Keep staged files after installing")
	rootCmd.PersistentFlags().StringVar(&osOverride, "os", runtime.GOOS, "Target OS (linux, darwin, windows, android)")
	rootCmd.PersistentFlags().StringVar(&archOverride, "arch", runtime.GOARCH, "Target architecture (amd64, arm64, etc.)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to updater.yaml config file")
	rootCmd.PersistentFlags().StringVar(&channelName, "channel", "stable", "Release channel (stable or nightly)")
}
