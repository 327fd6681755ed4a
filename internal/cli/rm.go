package cli

import "github.com/spf13/cobra"

var rmForce bool

var rmCmd = &cobra.Command{
	Use:   "rm CONTAINER [CONTAINER...]",
	Short: "Remove one or more working containers",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRm,
}

func init() {
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "unmount and remove even if the container's rootfs is mounted")
}

func runRm(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	return b.Rm(args, rmForce)
}
