package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addAddHistory bool

var addCmd = &cobra.Command{
	Use:   "add CONTAINER SRC DEST",
	Short: "Add a file, directory, or tar archive into a working container",
	Long: `Add behaves like copy, except a gzipped-tar or plain-tar SRC
(detected by magic bytes) is extracted into DEST rather than copied
verbatim.`,
	Args: cobra.ExactArgs(3),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().BoolVar(&addAddHistory, "add-history", true, "record this add as a history entry")
}

func runAdd(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	digest, err := b.Add(args[0], args[1], args[2], addAddHistory)
	if err != nil {
		return err
	}
	fmt.Println(digest)
	return nil
}
