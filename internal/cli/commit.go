package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit CONTAINER [IMAGE]",
	Short: "Create a new image from a working container's top layer",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCommit,
}

func runCommit(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	var name string
	if len(args) == 2 {
		name = args[1]
	}
	id, err := b.Commit(args[0], name)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}
