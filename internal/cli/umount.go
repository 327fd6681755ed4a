package cli

import "github.com/spf13/cobra"

var umountCmd = &cobra.Command{
	Use:   "umount CONTAINER",
	Short: "Unmount a working container's merged rootfs",
	Args:  cobra.ExactArgs(1),
	RunE:  runUmount,
}

func runUmount(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	return b.Unmount(args[0])
}
