package cmd

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

var passphrase string

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new wallet from a fresh mnemonic",
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic, err := wallet.GenerateMnemonic()
		if err != nil {
			return err
		}

		w, err := wallet.NewFromMnemonic(mnemonic, passphrase)
		if err != nil {
			return err
		}

		return withWallets(func(ws *wallet.Wallets) error {
			address, err := ws.Add(w)
			if err != nil {
				return err
			}

			fmt.Println("Address: ", address)
			fmt.Println("Mnemonic:", mnemonic)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&passphrase, "passphrase", "", "Optional passphrase mixed into the mnemonic seed.")
}
