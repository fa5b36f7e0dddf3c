package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"agencyos/internal/content"
	"agencyos/internal/export"
	"agencyos/internal/glossary"
	"agencyos/internal/localstore"
	"agencyos/internal/state"
)

// NewExportCommand writes an export of the local progress to disk.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the mind map and local progress",
		Long: `Export the mind map with this device's progress.

Formats: json (progress maps), txt (outline), html, pdf (needs Chrome)
and docx (needs pandoc).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.config()

			tree, err := content.Load(cfg.ContentPath)
			if err != nil {
				return fmt.Errorf("content: %w", err)
			}
			gloss, err := glossary.Load(cfg.GlossaryPath)
			if err != nil {
				return fmt.Errorf("glossary: %w", err)
			}
			maps := state.New(localstore.NewFileStore(cfg.DataDir))

			result, err := export.NewService(tree, gloss, maps).Export(cmd.Context(), export.Format(format))
			if err != nil {
				return err
			}

			if output == "-" {
				_, err := cmd.OutOrStdout().Write(result.Data)
				return err
			}
			if output == "" {
				output = result.Filename
			} else if info, err := os.Stat(output); err == nil && info.IsDir() {
				output = filepath.Join(output, result.Filename)
			}
			if err := os.WriteFile(output, result.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", output, len(result.Data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON), "json|txt|html|pdf|docx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file or directory, - for stdout")
	return cmd
}
