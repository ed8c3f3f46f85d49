package cmd

import (
	"github.com/flanksource/clicky"
	"github.com/flanksource/eden-updater/pkg/classify"
	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/system"
	"github.com/flanksource/eden-updater/pkg/utils"
	"github.com/spf13/cobra"
)

// ArtifactInfo describes how an artifact would be installed
type ArtifactInfo struct {
	Path      string `json:"path" pretty:"label=Artifact"`
	Variant   string `json:"variant" pretty:"label=Variant"`
	Installer string `json:"installer,omitempty" pretty:"label=System installer"`
	Size      string `json:"size,omitempty" pretty:"label=Size"`
}

type ArtifactList struct {
	Artifacts []ArtifactInfo `json:"artifacts" pretty:"table"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify <artifact>...",
	Short: "Show how artifacts would be installed on the target platform",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := classify.New(platform.Current())

		var list ArtifactList
		for _, path := range args {
			info := ArtifactInfo{
				Path:    utils.LogPath(path),
				Variant: string(c.Classify(path)),
				Size:    utils.FormatFileInfo(path),
			}
			if kind := system.GetSystemInstallerType(path); kind != "unknown" {
				info.Installer = kind
			}
			list.Artifacts = append(list.Artifacts, info)
		}

		out, err := clicky.Format(list)
		if err != nil {
			return err
		}
		cmd.Println(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
