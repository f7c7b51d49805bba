package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// recoverCmd represents the recover command
var recoverCmd = &cobra.Command{
	Use:   "recover <mnemonic words>",
	Short: "Recover a wallet from its mnemonic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic := strings.Join(args, " ")

		pass, err := readPassphrase()
		if err != nil {
			return err
		}

		w, err := wallet.NewFromMnemonic(mnemonic, pass)
		if err != nil {
			return err
		}

		return withWallets(func(ws *wallet.Wallets) error {
			address, err := ws.Add(w)
			if err != nil {
				return err
			}

			fmt.Println("Address:", address)
			return nil
		})
	},
}

// readPassphrase prompts for the mnemonic passphrase without echo when
// attached to a terminal.
func readPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Print("Passphrase (empty for none): ")
	pass, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}

	return string(pass), nil
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
