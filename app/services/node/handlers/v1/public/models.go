package public

import (
	"encoding/hex"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
)

type output struct {
	Index   int    `json:"index"`
	Value   int64  `json:"value"`
	Address string `json:"address"`
	Name    string `json:"name"`
}

type input struct {
	TxID     string `json:"txid"`
	OutIndex int    `json:"out_index"`
}

type tx struct {
	ID       string   `json:"id"`
	Coinbase bool     `json:"coinbase"`
	Inputs   []input  `json:"inputs,omitempty"`
	Outputs  []output `json:"outputs"`
}

type block struct {
	Hash         string `json:"hash"`
	PrevHash     string `json:"prev_hash"`
	Height       int64  `json:"height"`
	Timestamp    int64  `json:"timestamp"`
	Nonce        int64  `json:"nonce"`
	Difficulty   int64  `json:"difficulty"`
	Transactions []tx   `json:"transactions"`
}

type status struct {
	Host       string   `json:"host"`
	TipHash    string   `json:"tip_hash"`
	BestHeight int64    `json:"best_height"`
	KnownPeers []string `json:"known_peers"`
	Mempool    int      `json:"mempool"`
	InTransit  int      `json:"blocks_in_transit"`
	Miner      bool     `json:"miner"`
}

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

type submitted struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// =============================================================================

func toTx(dbTx database.Transaction, lookup func(string) string) tx {
	t := tx{
		ID:       dbTx.IDHex(),
		Coinbase: dbTx.IsCoinbase(),
		Outputs:  make([]output, len(dbTx.Outputs)),
	}

	if !t.Coinbase {
		t.Inputs = make([]input, len(dbTx.Inputs))
		for i, in := range dbTx.Inputs {
			t.Inputs[i] = input{
				TxID:     in.OutPoint().TxID,
				OutIndex: in.OutIndex,
			}
		}
	}

	for i, out := range dbTx.Outputs {
		address := wallet.Address(out.PubKeyHash)
		t.Outputs[i] = output{
			Index:   i,
			Value:   out.Value,
			Address: address,
			Name:    lookup(address),
		}
	}

	return t
}

func toTxs(dbTxs []database.Transaction, lookup func(string) string) []tx {
	txs := make([]tx, len(dbTxs))
	for i, dbTx := range dbTxs {
		txs[i] = toTx(dbTx, lookup)
	}

	return txs
}

func toBlock(dbBlock database.Block, lookup func(string) string) block {
	return block{
		Hash:         dbBlock.HashHex(),
		PrevHash:     hex.EncodeToString(dbBlock.PrevHash),
		Height:       dbBlock.Height,
		Timestamp:    dbBlock.Timestamp,
		Nonce:        dbBlock.Nonce,
		Difficulty:   dbBlock.Difficulty,
		Transactions: toTxs(dbBlock.Transactions, lookup),
	}
}
