package cli

import (
	"github.com/spf13/cobra"

	"github.com/ocibuilder/ocibuilder/internal/builder"
)

var configOpts builder.ConfigOptions

var configCmd = &cobra.Command{
	Use:   "config CONTAINER",
	Short: "Update a working container's image config",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfig,
}

func init() {
	configOpts.AddHistory = true

	configCmd.Flags().Var(newStringFlag(&configOpts.Author), "author", "set the image author")
	configCmd.Flags().Var(newStringFlag(&configOpts.User), "user", "set the default user")
	configCmd.Flags().Var(newStringFlag(&configOpts.WorkingDir), "workingdir", "set the default working directory")
	configCmd.Flags().Var(newStringFlag(&configOpts.StopSignal), "stop-signal", "set the stop signal")
	configCmd.Flags().Var(newStringFlag(&configOpts.CreatedBy), "created-by", "set the history entry's created-by line")
	configCmd.Flags().Var(newStringFlag(&configOpts.Cmd), "cmd", "set the default command")
	configCmd.Flags().Var(newStringFlag(&configOpts.Entrypoint), "entrypoint", "set the entrypoint")
	configCmd.Flags().Var(newStringFlag(&configOpts.Env), "env", "set comma-separated KEY=VALUE environment entries")
	configCmd.Flags().Var(newStringFlag(&configOpts.Label), "label", "set comma-separated KEY=VALUE labels")
	configCmd.Flags().Var(newStringFlag(&configOpts.Port), "port", "expose comma-separated ports (PORT[/PROTO])")
	configCmd.Flags().BoolVar(&configOpts.AddHistory, "add-history", true, "record each change as a history entry")
}

func runConfig(cmd *cobra.Command, args []string) error {
	b, err := openBuilder()
	if err != nil {
		return err
	}
	return b.Config(args[0], configOpts)
}

// stringFlag adapts a *string field on ConfigOptions to pflag.Value,
// so an unset flag leaves the field nil (untouched) rather than "".
type stringFlag struct {
	target **string
}

func newStringFlag(target **string) *stringFlag {
	return &stringFlag{target: target}
}

func (f *stringFlag) String() string {
	if *f.target == nil {
		return ""
	}
	return **f.target
}

func (f *stringFlag) Set(s string) error {
	*f.target = &s
	return nil
}

func (f *stringFlag) Type() string { return "string" }
