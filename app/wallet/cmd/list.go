package cmd

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the addresses of every stored wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWallets(func(ws *wallet.Wallets) error {
			addresses, err := ws.Addresses()
			if err != nil {
				return err
			}

			for _, address := range addresses {
				fmt.Println(address)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
