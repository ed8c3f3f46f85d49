package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/flanksource/clicky"
	"github.com/flanksource/clicky/task"
	flanksourceContext "github.com/flanksource/commons/context"
	updater "github.com/flanksource/eden-updater"
	"github.com/flanksource/eden-updater/pkg/types"
	"github.com/flanksource/eden-updater/pkg/version"
	"github.com/spf13/cobra"
)

var (
	installVersion   string
	installURL       string
	installChecksum  string
	installPortable  bool
	installShortcuts bool
)

var installCmd = &cobra.Command{
	Use:          "install <artifact>",
	Short:        "Install a downloaded Eden build",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	Long: `Install a downloaded Eden build into the channel folder.

The artifact type is detected from its name and contents. The previous install
is restored if anything fails; the user/ folder is never touched.

Examples:
  eden-updater install Eden-Linux-v0.0.3.AppImage
  eden-updater install --channel nightly --portable Eden-Windows.zip
  eden-updater install --version 0.0.3 --checksum sha256:ab12... Eden-macOS.dmg`,
	RunE: runInstall,
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().StringVar(&installVersion, "version", "", "Version being installed (default: parsed from the file name)")
	installCmd.Flags().StringVar(&installURL, "url", "", "URL the artifact was downloaded from")
	installCmd.Flags().StringVar(&installChecksum, "checksum", "", "Expected checksum, e.g. sha256:<hex>")
	installCmd.Flags().BoolVar(&installPortable, "portable", false, "Create the user/ folder for portable mode")
	installCmd.Flags().BoolVar(&installShortcuts, "shortcuts", false, "Create a desktop or launcher shortcut")
}

func runInstall(cmd *cobra.Command, args []string) error {
	ch, err := selectedChannel()
	if err != nil {
		return err
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	v := installVersion
	if v == "" {
		v, _ = version.FromFilename(path)
	}
	artifact := types.NewUpdateArtifact(path, types.UpdateInfo{
		Version:     v,
		Channel:     ch,
		DownloadURL: installURL,
		Checksum:    installChecksum,
	})
	opts := types.InstallOptions{PortableMode: installPortable, CreateShortcuts: installShortcuts}

	u, err := newUpdater()
	if err != nil {
		return err
	}
	defer u.Close()

	var result types.InstallResult
	var installErr error
	task.StartTask(fmt.Sprintf("install-%s", ch), func(ctx flanksourceContext.Context, t *task.Task) (interface{}, error) {
		result, installErr = u.InstallWithResult(ctx, artifact, opts, updater.TaskProgress(t), updater.TaskStatus(t))
		if installErr == nil {
			t.Success()
		}
		return result, installErr
	})

	exitCode := clicky.WaitForGlobalCompletion()
	if installErr != nil {
		return installErr
	}
	if exitCode != 0 {
		return fmt.Errorf("installation failed with exit code %d", exitCode)
	}

	out, err := clicky.Format(result)
	if err != nil {
		return err
	}
	cmd.Println(out)
	return nil
}
