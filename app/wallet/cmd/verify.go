package cmd

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <block-hash> <txid>",
	Short: "Check a transaction is included in a block using its merkle proof",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var proof database.MerkleProof
		if err := get(fmt.Sprintf("%s/v1/blocks/%s/proof/%s", url, args[0], args[1]), &proof); err != nil {
			return err
		}

		if err := proof.Verify(); err != nil {
			return err
		}

		fmt.Printf("Transaction %s is included in block %s\n", args[1], args[0])
		fmt.Printf("Merkle root: %s path: %d hashes\n", proof.Root, len(proof.Path))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
