package cli

import (
	"github.com/spf13/cobra"
)

var blindpullCmd = &cobra.Command{
	Use:   "blindpull",
	Short: "Initialize this machine from the remote",
	Long: `Pull the opaque tree, decrypt every tracked file and write it into the
working tree. Files that already exist locally are left untouched. This
initializes a fresh machine: the remote is truth.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()
		return eng.BlindPull()
	},
}

func init() {
	rootCmd.AddCommand(blindpullCmd)
}
