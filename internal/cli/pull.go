package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	pullInsecure  bool
	pullAnonymous bool
	pullQuiet     bool
)

var pullCmd = &cobra.Command{
	Use:   "pull IMAGE",
	Short: "Pull an image from a registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runPull,
}

func init() {
	pullCmd.Flags().BoolVar(&pullInsecure, "insecure", false, "allow http or self-signed registries")
	pullCmd.Flags().BoolVar(&pullAnonymous, "anonymous", false, "skip credential lookup, pull anonymously")
	pullCmd.Flags().BoolVarP(&pullQuiet, "quiet", "q", false, "suppress per-layer progress output")
}

func runPull(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	if pullQuiet {
		b.Output = io.Discard
	}
	id, err := b.Pull(args[0], pullInsecure, pullAnonymous)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}
