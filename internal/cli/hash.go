package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"agencyos/internal/passcode"
)

// NewHashCommand prints the digest of a passcode for AGENCYOS_PASSCODES.
func NewHashCommand() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "hash <code>",
		Short: "Print the SHA-256 digest of a passcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest := passcode.Hash(args[0])
			if label != "" {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", digest, label)
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), digest)
			return err
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "print a hash=label entry")
	return cmd
}
