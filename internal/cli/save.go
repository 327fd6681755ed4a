package cli

import "github.com/spf13/cobra"

var saveCmd = &cobra.Command{
	Use:   "save IMAGE OUTPUT_PATH",
	Short: "Save an image as an oci-layout tar archive",
	Args:  cobra.ExactArgs(2),
	RunE:  runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	return b.Save(args[0], args[1])
}
