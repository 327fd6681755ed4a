package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var copyAddHistory bool

var copyCmd = &cobra.Command{
	Use:   "copy CONTAINER SRC DEST",
	Short: "Copy a file or directory into a working container",
	Args:  cobra.ExactArgs(3),
	RunE:  runCopy,
}

func init() {
	copyCmd.Flags().BoolVar(&copyAddHistory, "add-history", true, "record this copy as a history entry")
}

func runCopy(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	digest, err := b.Copy(args[0], args[1], args[2], copyAddHistory)
	if err != nil {
		return err
	}
	fmt.Println(digest)
	return nil
}
