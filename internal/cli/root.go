// Package cli implements the ocibuilder command-line front end: one
// cobra subcommand per Builder operation, sharing a persistent --root
// flag that resolves the store directory the way internal/config does.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ocibuilder/ocibuilder/internal/builder"
)

var (
	// Version is stamped at build time via -ldflags.
	Version = "0.1.0"

	rootDir string
)

var rootCmd = &cobra.Command{
	Use:   "ocibuilder",
	Short: "Build OCI images from the command line",
	Long: `ocibuilder builds OCI-compliant container images without a
daemon: from/pull materialize a working container, run/copy/add mutate
its writable top layer, and commit snapshots it into a new image that
push or save can hand off.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "",
		"store root directory (default: $OCIBUILDER_ROOT or ~/.local/share/ocibuilder)")

	rootCmd.AddCommand(fromCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(copyCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(umountCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(rmiCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(containersCmd)
}

// openBuilder opens the Builder rooted at the --root flag (or its
// fallbacks), the one entry point every subcommand goes through.
func openBuilder() (*builder.Builder, error) {
	b, err := builder.Open(rootDir)
	if err != nil {
		return nil, fmt.Errorf("open builder store: %w", err)
	}
	return b, nil
}
