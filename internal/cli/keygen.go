package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vietddude/txgate/internal/core/keys"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 credential for testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cred, err := keys.Generate()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "account: %s\nsecret:  %s\n", cred.PublicKey(), cred.Secret())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
