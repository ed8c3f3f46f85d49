package cmd

import (
	"context"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start the installed Eden build of a channel",
	Long: `Start the installed Eden build of a channel.

On desktop platforms the emulator is started detached from the updater. On
Android the launch activity is tried first, then the remembered artifact is
opened with the system handler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := selectedChannel()
		if err != nil {
			return err
		}
		u, err := newUpdater()
		if err != nil {
			return err
		}
		defer u.Close()

		launched, err := u.Launch(context.Background(), ch)
		if err != nil {
			return err
		}
		logger.Infof("Started %s via %s: %s", ch, launched.Method, launched.Target)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(launchCmd)
}
