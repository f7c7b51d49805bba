package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

var (
	from   string
	to     string
	amount int64
	mine   bool
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send coins from a stored wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !wallet.ValidateAddress(to) {
			return fmt.Errorf("to %q: %w", to, wallet.ErrInvalidAddress)
		}

		var w wallet.Wallet
		err := withWallets(func(ws *wallet.Wallets) error {
			var err error
			w, err = ws.Get(from)
			return err
		})
		if err != nil {
			return err
		}

		var unspent database.UnspentList
		if err := get(fmt.Sprintf("%s/v1/utxo/%s", url, from), &unspent); err != nil {
			return err
		}

		tx, err := database.NewSpend(w, to, amount, unspent)
		if err != nil {
			return err
		}

		data, err := tx.Serialize()
		if err != nil {
			return err
		}

		var resp struct {
			Status string `json:"status"`
			ID     string `json:"id"`
		}
		if err := post(fmt.Sprintf("%s/v1/tx/submit", url), json.RawMessage(data), &resp); err != nil {
			return err
		}

		fmt.Printf("Transaction %s: %s\n", resp.ID, resp.Status)

		if mine {
			if err := post(fmt.Sprintf("%s/v1/mining/signal", url), nil, nil); err != nil {
				return err
			}
			fmt.Println("Mining signalled")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&from, "from", "f", "", "Address of the stored wallet to spend from.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address to send to.")
	sendCmd.Flags().Int64VarP(&amount, "amount", "a", 0, "Amount to send.")
	sendCmd.Flags().BoolVarP(&mine, "mine", "m", false, "Ask the node to mine right away.")
	sendCmd.MarkFlagRequired("from")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("amount")
}
