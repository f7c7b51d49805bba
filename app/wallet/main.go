// This program manages wallets and sends transactions to a ledger node.
package main

import "github.com/ardanlabs/ledger/app/wallet/cmd"

func main() {
	cmd.Execute()
}
