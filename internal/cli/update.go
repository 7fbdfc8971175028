package cli

import (
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Synchronize the working tree with the remote",
	Long: `Pull the opaque tree and reconcile each file against the local and
remote images: locally edited files are encrypted and uploaded, remotely
edited files are decrypted and downloaded, deletions propagate in both
directions, and two-sided edits are surfaced as conflicts with the local
version kept as <name>_local_backup for a manual merge.

After the first blindpush or blindpull, this is the everyday command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()
		return eng.Update()
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
