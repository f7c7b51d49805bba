// Package cmd contains wallet app
package cmd

import (
	"fmt"
	"os"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage/leveldb"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

var (
	walletPath string
	url        string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "wallet",
	Short:        "Manage ledger wallets and send coins",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&walletPath, "wallet-path", "p", "zblock/wallets", "Path to the wallet database.")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

// withWallets opens the wallet database for the duration of the function.
func withWallets(fn func(ws *wallet.Wallets) error) error {
	db, err := leveldb.Open(walletPath)
	if err != nil {
		return fmt.Errorf("opening wallets: %w", err)
	}
	defer db.Close()

	return fn(wallet.NewWallets(db))
}
