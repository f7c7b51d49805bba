package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/leveldb"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ardanlabs/ledger/foundation/blockchain/wire"
	"github.com/ardanlabs/ledger/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// nowhere drops every message.
type nowhere struct{}

func (nowhere) Send(context.Context, string, wire.Message) error { return nil }

func Test_MineOnSignal(t *testing.T) {
	t.Log("Given the need to mine pending transactions in the background.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a miner accepts a wallet transaction.", testID)
		{
			a, b, miner := newWallet(t), newWallet(t), newWallet(t)

			g := genesis.Genesis{
				Date:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				TransPerBlock: 10,
				Difficulty:    8,
				Subsidy:       10,
				Address:       a.Address(),
				CoinbaseData:  "worker genesis",
			}

			store, err := leveldb.NewMemory()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the store: %v", failed, testID, err)
			}
			defer store.Close()

			chain, err := database.Open(database.Config{Store: store, Genesis: g})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the blockchain: %v", failed, testID, err)
			}

			node, err := state.New(state.Config{
				Host:         "node1:3000",
				MinerAddress: miner.Address(),
				Blockchain:   chain,
				Transport:    nowhere{},
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create the node state: %v", failed, testID, err)
			}

			worker.Run(node, time.Hour, t.Logf)
			defer node.Shutdown()

			unspent, err := node.QueryUnspent(a.Address())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query unspent outputs: %v", failed, testID, err)
			}

			tx, err := database.NewSpend(a, b.Address(), 4, unspent)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the spend: %v", failed, testID, err)
			}

			if err := node.UpsertWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the spend: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the spend.", success, testID)

			deadline := time.Now().Add(30 * time.Second)
			for {
				height, err := chain.BestHeight()
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to read the height: %v", failed, testID, err)
				}
				if height == 1 {
					break
				}
				if time.Now().After(deadline) {
					t.Fatalf("\t%s\tTest %d:\tShould mine a block before the deadline.", failed, testID)
				}
				time.Sleep(10 * time.Millisecond)
			}
			t.Logf("\t%s\tTest %d:\tShould mine a block.", success, testID)

			balance, err := node.QueryBalance(b.Address())
			if err != nil || balance != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould have balance 4 for the receiver, got %d: %v", failed, testID, balance, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have balance 4 for the receiver.", success, testID)
		}
	}
}

func newWallet(t *testing.T) wallet.Wallet {
	w, err := wallet.New()
	if err != nil {
		t.Fatalf("Should be able to create a wallet: %v", err)
	}

	return w
}
