package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Print the confirmed balance of an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Address string `json:"address"`
			Balance int64  `json:"balance"`
		}

		if err := get(fmt.Sprintf("%s/v1/balance/%s", url, args[0]), &resp); err != nil {
			return err
		}

		fmt.Printf("Balance of '%s': %d\n", resp.Address, resp.Balance)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
