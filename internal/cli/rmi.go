package cli

import "github.com/spf13/cobra"

var rmiForce bool

var rmiCmd = &cobra.Command{
	Use:   "rmi IMAGE [IMAGE...]",
	Short: "Remove one or more images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRmi,
}

func init() {
	rmiCmd.Flags().BoolVarP(&rmiForce, "force", "f", false, "also remove containers referencing the image")
}

func runRmi(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	return b.Rmi(args, rmiForce)
}
