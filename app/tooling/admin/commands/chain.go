package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
)

// PrintChain writes every block from the tip to genesis.
func PrintChain(w io.Writer, chain *database.Blockchain) error {
	iter, err := chain.Iterator()
	if err != nil {
		return err
	}

	for !iter.Done() {
		block, err := iter.Next()
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "============ Block %s ============\n", block.HashHex())
		fmt.Fprintf(w, "Height: %d\n", block.Height)
		fmt.Fprintf(w, "Prev. block: %x\n", []byte(block.PrevHash))
		fmt.Fprintf(w, "PoW: %t\n", block.ValidatePOW() == nil)
		for _, tx := range block.Transactions {
			fmt.Fprintln(w, tx.String())
		}
		fmt.Fprintln(w)
	}

	return nil
}

// Reindex rebuilds the unspent output index.
func Reindex(w io.Writer, chain *database.Blockchain) error {
	if err := chain.UTXO().Reindex(); err != nil {
		return err
	}

	count, err := chain.UTXO().Count()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Done! There are %d transactions in the UTXO set.\n", count)

	return nil
}

// Balance writes the confirmed balance of the address.
func Balance(w io.Writer, chain *database.Blockchain, address string) error {
	pubKeyHash, err := wallet.PubKeyHashFromAddress(address)
	if err != nil {
		return fmt.Errorf("%s: %w", address, err)
	}

	balance, err := chain.UTXO().BalanceOf(pubKeyHash)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Balance of '%s': %d\n", address, balance)

	return nil
}
