package cli

import (
	"github.com/spf13/cobra"

	"agencyos/internal/config"
)

// RootOptions holds flags shared by every command. Non-empty values
// override the environment.
type RootOptions struct {
	DataDir     string
	ContentPath string
}

// NewRootCommand creates the root command for the agencyos CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "agencyos",
		Short: "Agency OS mind map with shared checklist progress",
		Long: `Agency OS serves the agency operating-system mind map behind a passcode
gate and keeps checklist progress and comments in sync across devices.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "per-device data directory (env AGENCYOS_DATA_DIR)")
	cmd.PersistentFlags().StringVar(&opts.ContentPath, "content", "", "mind map YAML file (env AGENCYOS_CONTENT_PATH)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewHashCommand())
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

func (o *RootOptions) config() config.Config {
	cfg := config.Load()
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.ContentPath != "" {
		cfg.ContentPath = o.ContentPath
	}
	return cfg
}
