package cli

import (
	"io"

	"github.com/spf13/cobra"
)

var (
	pushInsecure  bool
	pushAnonymous bool
	pushQuiet     bool
)

var pushCmd = &cobra.Command{
	Use:   "push IMAGE DESTINATION",
	Short: "Push an image to a registry",
	Args:  cobra.ExactArgs(2),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().BoolVar(&pushInsecure, "insecure", false, "allow http or self-signed registries")
	pushCmd.Flags().BoolVar(&pushAnonymous, "anonymous", false, "skip credential lookup, push anonymously")
	pushCmd.Flags().BoolVarP(&pushQuiet, "quiet", "q", false, "suppress progress output")
}

func runPush(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	if pushQuiet {
		b.Output = io.Discard
	}
	return b.Push(args[0], args[1], pushInsecure, pushAnonymous)
}
