package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mountCmd = &cobra.Command{
	Use:   "mount CONTAINER",
	Short: "Mount a working container's merged rootfs and print the mount point",
	Args:  cobra.ExactArgs(1),
	RunE:  runMount,
}

func runMount(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	mountPoint, err := b.Mount(args[0])
	if err != nil {
		return err
	}
	fmt.Println(mountPoint)
	return nil
}
