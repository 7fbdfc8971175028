package cli

import (
	"github.com/spf13/cobra"
)

var blindpushCmd = &cobra.Command{
	Use:   "blindpush",
	Short: "Reset the remote from this working tree",
	Long: `Encrypt and upload every file in the working tree, discarding whatever
the opaque tree held before (you are asked first). This initializes a new
remote or forcibly resets an existing one: the working tree is truth.

A fresh name-hash key is generated, so a blindpush also rotates the
mapping from logical names to opaque blob names.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine()
		if err != nil {
			return err
		}
		defer cleanup()
		return eng.BlindPush()
	},
}

func init() {
	rootCmd.AddCommand(blindpushCmd)
}
