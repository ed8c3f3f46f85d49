package cmd

import (
	"github.com/flanksource/commons/logger"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/spf13/cobra"
)

var clearAll bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the recorded install of a channel",
	Long: `Forget the recorded install of a channel.

Only the stored version, executable and artifact records are removed; the
installed files are left in place and are found again by probing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		channels := types.Channels
		if !clearAll {
			ch, err := selectedChannel()
			if err != nil {
				return err
			}
			channels = []types.Channel{ch}
		}

		u, err := newUpdater()
		if err != nil {
			return err
		}
		defer u.Close()

		for _, ch := range channels {
			if err := u.Forget(ch); err != nil {
				return err
			}
			logger.Infof("Cleared %s", ch)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
	clearCmd.Flags().BoolVar(&clearAll, "all", false, "Clear every channel")
}
