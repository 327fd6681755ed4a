package cli

import (
	"github.com/spf13/cobra"
)

var (
	runRundir        string
	runSystemdCgroup bool
	runAddHistory    bool
)

var runCmd = &cobra.Command{
	Use:   "run CONTAINER -- CMD [ARG...]",
	Short: "Run a command inside a working container's rootfs",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runRundir, "rundir", "", "override the runtime state directory")
	runCmd.Flags().BoolVar(&runSystemdCgroup, "systemd-cgroup", false, "use the systemd cgroup driver")
	runCmd.Flags().BoolVar(&runAddHistory, "add-history", true, "record this run as a history entry")
}

func runRun(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	return b.Run(args[0], args[1:], runRundir, runSystemdCgroup, runAddHistory)
}
