package cli

import "github.com/spf13/cobra"

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every image, container, and layer, returning the store to empty",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	return b.Reset()
}
