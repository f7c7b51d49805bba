package state_test

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/ardanlabs/ledger/foundation/blockchain/state"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/leveldb"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ardanlabs/ledger/foundation/blockchain/wire"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// network delivers messages between nodes in the same process.
type network struct {
	mu    sync.Mutex
	nodes map[string]*state.State
	sent  map[string]int
}

func newNetwork() *network {
	return &network{
		nodes: make(map[string]*state.State),
		sent:  make(map[string]int),
	}
}

func (n *network) Send(ctx context.Context, host string, msg wire.Message) error {
	n.mu.Lock()
	node, exists := n.nodes[host]
	n.sent[msg.Command()]++
	n.mu.Unlock()

	if !exists {
		return errors.New("host unreachable")
	}

	return node.Handle(ctx, msg)
}

func (n *network) count(cmd string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.sent[cmd]
}

// =============================================================================

func Test_Sync(t *testing.T) {
	t.Log("Given the need to bring a new node up to the height of its peer.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen node 1 is at height 3 and node 2 at height 0.", testID)
		{
			a := newWallet(t)
			g := newGenesis(a.Address())
			net := newNetwork()

			_, chain1 := newNode(t, net, "node1:3000", g, "")
			node2, chain2 := newNode(t, net, "node2:3000", g, "")

			for i := 0; i < 3; i++ {
				coinbase, err := database.NewCoinbase(a.Address(), g.Subsidy, "")
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to build the coinbase: %v", failed, testID, err)
				}
				if _, err := chain1.AppendBlock(context.Background(), []database.Transaction{coinbase}); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to mine on node 1: %v", failed, testID, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to mine 3 blocks on node 1.", success, testID)

			msg := wire.Version{AddrFrom: "node1:3000", Version: wire.ProtocolVersion, BestHeight: 3}
			if err := node2.Handle(context.Background(), msg); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to handle the version: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to handle the version.", success, testID)

			if got := net.count(wire.CmdGetBlocks); got != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould send 1 getblocks, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould send 1 getblocks.", success, testID)

			if got := net.count(wire.CmdGetData); got != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould send 3 getdata, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould send 3 getdata.", success, testID)

			height, err := chain2.BestHeight()
			if err != nil || height != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould be at height 3, got %d: %v", failed, testID, height, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be at height 3.", success, testID)

			if transit := node2.RetrieveBlocksInTransit(); len(transit) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould have no blocks in transit, got %d.", failed, testID, len(transit))
			}
			t.Logf("\t%s\tTest %d:\tShould have no blocks in transit.", success, testID)

			tip1, _ := chain1.Tip()
			tip2, _ := chain2.Tip()
			if tip1.HashHex() != tip2.HashHex() {
				t.Fatalf("\t%s\tTest %d:\tShould share the same tip.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould share the same tip.", success, testID)

			bal, err := node2.QueryBalance(a.Address())
			if err != nil || bal != 4*g.Subsidy {
				t.Fatalf("\t%s\tTest %d:\tShould have the synced balance, got %d: %v", failed, testID, bal, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have the synced balance.", success, testID)

			peers := node2.RetrieveKnownPeers()
			if len(peers) != 1 || peers[0].Host != "node1:3000" {
				t.Fatalf("\t%s\tTest %d:\tShould learn about node 1: %v", failed, testID, peers)
			}
			t.Logf("\t%s\tTest %d:\tShould learn about node 1.", success, testID)
		}
	}
}

func Test_TransactionFlow(t *testing.T) {
	t.Log("Given the need to accept, share and mine transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a wallet submits a spend to a miner.", testID)
		{
			a, b, miner := newWallet(t), newWallet(t), newWallet(t)
			g := newGenesis(a.Address())
			net := newNetwork()

			node1, _ := newNode(t, net, "node1:3000", g, miner.Address())
			node2, _ := newNode(t, net, "node2:3000", g, "")

			unspent, err := node1.QueryUnspent(a.Address())
			if err != nil || len(unspent) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have one unspent output, got %d: %v", failed, testID, len(unspent), err)
			}

			tx, err := database.NewSpend(a, b.Address(), 4, unspent)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the spend: %v", failed, testID, err)
			}

			if err := node1.UpsertWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the spend: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the spend.", success, testID)

			unspent, err = node1.QueryUnspent(a.Address())
			if err != nil || len(unspent) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould hide outputs spent by pending transactions, got %d: %v", failed, testID, len(unspent), err)
			}
			t.Logf("\t%s\tTest %d:\tShould hide outputs spent by pending transactions.", success, testID)

			double, err := database.NewSpend(a, miner.Address(), 5, database.UnspentList{
				{OutPoint: tx.Inputs[0].OutPoint(), Output: database.TXOutput{Value: g.Subsidy, PubKeyHash: a.PubKeyHash()}},
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the double spend: %v", failed, testID, err)
			}

			if err := node1.UpsertWalletTransaction(double); !errors.Is(err, database.ErrInvalidTransaction) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the double spend: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the double spend.", success, testID)

			node1.NetSendTxToPeers(context.Background(), tx, "")
			node1.AddKnownPeer(peer.New("node2:3000"))
			node1.NetSendTxToPeers(context.Background(), tx, "")

			if got := node2.QueryMempoolLength(); got != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould share the spend with node 2, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould share the spend with node 2.", success, testID)

			block, err := node1.MineNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to mine the block.", success, testID)

			if len(block.Transactions) != 2 || node1.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould include the spend and clear the mempool.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould include the spend and clear the mempool.", success, testID)

			node1.NetSendBlockToPeers(context.Background(), block)

			if got := node2.QueryMempoolLength(); got != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould clear node 2 mempool, got %d.", failed, testID, got)
			}

			for _, exp := range []struct {
				addr  string
				value int64
			}{
				{a.Address(), 6},
				{b.Address(), 4},
				{miner.Address(), g.Subsidy},
			} {
				got, err := node2.QueryBalance(exp.addr)
				if err != nil || got != exp.value {
					t.Fatalf("\t%s\tTest %d:\tShould have balance %d for %s, got %d: %v", failed, testID, exp.value, exp.addr, got, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould have the same balances on node 2.", success, testID)

			if _, err := node1.MineNewBlock(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrNoTransactions: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrNoTransactions with an empty mempool.", success, testID)
		}
	}
}

func Test_RejectPeerTx(t *testing.T) {
	t.Log("Given the need to drop invalid transactions from peers.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a peer sends a spend signed with the wrong key.", testID)
		{
			a, b, thief := newWallet(t), newWallet(t), newWallet(t)
			g := newGenesis(a.Address())
			net := newNetwork()

			node, _ := newNode(t, net, "node1:3000", g, "")

			unspent, err := node.QueryUnspent(a.Address())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query unspent outputs: %v", failed, testID, err)
			}

			tx, err := database.NewSpend(a, b.Address(), 4, unspent)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the spend: %v", failed, testID, err)
			}

			prev := map[database.OutPoint]database.TXOutput{unspent[0].OutPoint: unspent[0].Output}
			if err := tx.Sign(thief.PrivateKey, prev); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign with the thief key: %v", failed, testID, err)
			}

			err = node.Handle(context.Background(), wire.Tx{AddrFrom: "node9:3000", Transaction: tx})
			if !database.IsRejected(err) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the transaction.", success, testID)

			if node.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not add the transaction to the mempool.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not add the transaction to the mempool.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the owner signs against an output locked to another hash.", testID)
		{
			a, b, thief := newWallet(t), newWallet(t), newWallet(t)
			g := newGenesis(a.Address())
			net := newNetwork()

			node, _ := newNode(t, net, "node1:3000", g, "")

			unspent, err := node.QueryUnspent(a.Address())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query unspent outputs: %v", failed, testID, err)
			}

			tx, err := database.NewSpend(a, b.Address(), 4, unspent)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the spend: %v", failed, testID, err)
			}

			wrong := unspent[0].Output
			wrong.PubKeyHash = thief.PubKeyHash()
			prev := map[database.OutPoint]database.TXOutput{unspent[0].OutPoint: wrong}
			if err := tx.Sign(a.PrivateKey, prev); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to sign against the wrong output: %v", failed, testID, err)
			}

			err = node.Handle(context.Background(), wire.Tx{AddrFrom: "node9:3000", Transaction: tx})
			if !errors.Is(err, database.ErrInvalidSignature) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the transaction with ErrInvalidSignature: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the transaction with ErrInvalidSignature.", success, testID)

			if node.QueryMempoolLength() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not add the transaction to the mempool.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not add the transaction to the mempool.", success, testID)
		}
	}
}

func Test_ChainCorruption(t *testing.T) {
	t.Log("Given the need to halt a node whose chain is corrupted.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block on the chain is missing from the store.", testID)
		{
			a := newWallet(t)

			store, err := leveldb.NewMemory()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the store: %v", failed, testID, err)
			}
			t.Cleanup(func() { store.Close() })

			chain, err := database.Open(database.Config{Store: store, Genesis: newGenesis(a.Address())})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to open the blockchain: %v", failed, testID, err)
			}

			var halted []error
			node, err := state.New(state.Config{
				Host:       "node1:3000",
				Blockchain: chain,
				KnownPeers: peer.NewPeerSet(),
				Transport:  newNetwork(),
				Halt: func(err error) {
					halted = append(halted, err)
				},
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create the node state: %v", failed, testID, err)
			}

			genesisBlock, err := chain.Tip()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read the tip: %v", failed, testID, err)
			}

			coinbase, err := database.NewCoinbase(a.Address(), 10, "")
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create a coinbase: %v", failed, testID, err)
			}
			if _, err := chain.AppendBlock(context.Background(), []database.Transaction{coinbase}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append a block: %v", failed, testID, err)
			}

			if _, err := node.QueryBlocks(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read an intact chain: %v", failed, testID, err)
			}
			if len(halted) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not halt on an intact chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not halt on an intact chain.", success, testID)

			err = store.Update(func(txn storage.Txn) error {
				return txn.Delete([]byte("block-" + hex.EncodeToString(genesisBlock.Hash)))
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to delete the block: %v", failed, testID, err)
			}

			if _, err := node.QueryBlocks(); !errors.Is(err, database.ErrChainCorruption) {
				t.Fatalf("\t%s\tTest %d:\tShould get ErrChainCorruption: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get ErrChainCorruption.", success, testID)

			if len(halted) != 1 || !errors.Is(halted[0], database.ErrChainCorruption) {
				t.Fatalf("\t%s\tTest %d:\tShould halt the node once with the corruption: %v", failed, testID, halted)
			}
			t.Logf("\t%s\tTest %d:\tShould halt the node.", success, testID)
		}
	}
}

// =============================================================================

func newGenesis(address string) genesis.Genesis {
	return genesis.Genesis{
		Date:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		TransPerBlock: 10,
		Difficulty:    8,
		Subsidy:       10,
		Address:       address,
		CoinbaseData:  "test genesis",
	}
}

func newWallet(t *testing.T) wallet.Wallet {
	w, err := wallet.New()
	if err != nil {
		t.Fatalf("Should be able to create a wallet: %v", err)
	}

	return w
}

func newNode(t *testing.T, net *network, host string, g genesis.Genesis, miner string) (*state.State, *database.Blockchain) {
	store, err := leveldb.NewMemory()
	if err != nil {
		t.Fatalf("Should be able to open the store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	chain, err := database.Open(database.Config{Store: store, Genesis: g})
	if err != nil {
		t.Fatalf("Should be able to open the blockchain: %v", err)
	}

	node, err := state.New(state.Config{
		Host:         host,
		MinerAddress: miner,
		Blockchain:   chain,
		KnownPeers:   peer.NewPeerSet(),
		Transport:    net,
		Halt: func(err error) {
			t.Errorf("Should not halt the node: %v", err)
		},
	})
	if err != nil {
		t.Fatalf("Should be able to create the node state: %v", err)
	}

	net.mu.Lock()
	net.nodes[host] = node
	net.mu.Unlock()

	return node, chain
}
