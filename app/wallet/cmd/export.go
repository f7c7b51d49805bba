package cmd

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var keyFile string

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <address>",
	Short: "Write the private key of a wallet to a key file a node can mine with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWallets(func(ws *wallet.Wallets) error {
			w, err := ws.Get(args[0])
			if err != nil {
				return err
			}

			if err := crypto.SaveECDSA(keyFile, w.PrivateKey); err != nil {
				return err
			}

			fmt.Println("Key file:", keyFile)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&keyFile, "file", "f", "miner.ecdsa", "Path of the key file to write.")
}
