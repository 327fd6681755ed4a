package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	fromName      string
	fromInsecure  bool
	fromAnonymous bool
)

var fromCmd = &cobra.Command{
	Use:   "from IMAGE",
	Short: "Create a working container from an image, or from scratch",
	Args:  cobra.ExactArgs(1),
	RunE:  runFrom,
}

func init() {
	fromCmd.Flags().StringVar(&fromName, "name", "", "name for the new working container")
	fromCmd.Flags().BoolVar(&fromInsecure, "insecure", false, "allow http or self-signed registries")
	fromCmd.Flags().BoolVar(&fromAnonymous, "anonymous", false, "skip credential lookup, pull anonymously")
}

func runFrom(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	name, err := b.From(args[0], fromName, fromInsecure, fromAnonymous)
	if err != nil {
		return err
	}
	fmt.Println(name)
	return nil
}
