package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a private relay auth key",
	Long: `Generates a fresh ECDSA key that identifies the searcher to the private
relay. It signs requests only and should never hold funds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s=0x%x\n", config.EnvRelayAuthKey, crypto.FromECDSA(key))
		fmt.Fprintf(out, "Public Address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
