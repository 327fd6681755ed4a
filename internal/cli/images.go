package cli

import (
	"fmt"
	"text/tabwriter"

	"os"

	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List locally stored images",
	Args:  cobra.NoArgs,
	RunE:  runImages,
}

func runImages(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	records, err := b.Images.Images()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REPOSITORY\tTAG\tIMAGE ID\tCREATED\tSIZE")
	for _, r := range records {
		repo := r.Repository
		tag := r.Tag
		if repo == "" {
			repo = "<none>"
		}
		if tag == "" {
			tag = "<none>"
		}
		id := r.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", repo, tag, id, r.Created.Format("2006-01-02T15:04:05Z"), r.Size)
	}
	return tw.Flush()
}
