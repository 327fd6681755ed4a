package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect NAME_OR_ID",
	Short: "Print an image's or working container's JSON config",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	data, err := b.Inspect(args[0])
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
