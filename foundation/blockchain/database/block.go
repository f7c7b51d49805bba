package database

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"math/big"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// Block represents a group of transactions batched together and chained to
// the previous block through its hash.
type Block struct {
	Timestamp    int64         `json:"timestamp"`  // Milliseconds since epoch when mining started.
	PrevHash     hexutil.Bytes `json:"prev_hash"`  // Empty for the genesis block.
	Hash         hexutil.Bytes `json:"hash"`       // Solution to the proof of work.
	Transactions []Transaction `json:"transactions"`
	Nonce        int64         `json:"nonce"`      // Value identified to solve the hash solution.
	Height       int64         `json:"height"`     // Zero for the genesis block.
	Difficulty   int64         `json:"difficulty"` // Number of leading zero bits the hash needs.
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	PrevHash     []byte
	Height       int64
	Difficulty   int64
	Transactions []Transaction
	Timestamp    int64 // Zero means now.
	MaxNonce     int64 // Zero means math.MaxInt64.
	EvHandler    func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. The search starts at nonce zero and
// checks the context on every attempt so a new block from a peer can cancel
// the work.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	ev := args.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	if err := validateDifficulty(args.Difficulty); err != nil {
		return Block{}, err
	}

	digest, err := TransactionsDigest(args.Transactions)
	if err != nil {
		return Block{}, err
	}

	timestamp := args.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().UTC().UnixMilli()
	}

	maxNonce := args.MaxNonce
	if maxNonce <= 0 {
		maxNonce = math.MaxInt64
	}

	ev("database: POW: MINING: started: height[%d] txs[%d]", args.Height, len(args.Transactions))
	defer ev("database: POW: MINING: completed")

	target := Target(args.Difficulty)

	var hashInt big.Int
	for nonce := int64(0); nonce < maxNonce; nonce++ {
		if nonce%1_000_000 == 0 && nonce > 0 {
			ev("database: POW: MINING: attempts[%d]", nonce)
		}

		if ctx.Err() != nil {
			ev("database: POW: MINING: CANCELLED")
			return Block{}, ctx.Err()
		}

		hash := signature.SHA256(powData(args.PrevHash, digest, timestamp, args.Difficulty, nonce))
		hashInt.SetBytes(hash)

		if hashInt.Cmp(target) >= 0 {
			continue
		}

		ev("database: POW: MINING: SOLVED: height[%d] hash[%x] attempts[%d]", args.Height, hash, nonce+1)

		b := Block{
			Timestamp:    timestamp,
			PrevHash:     bytes.Clone(args.PrevHash),
			Hash:         hash,
			Transactions: args.Transactions,
			Nonce:        nonce,
			Height:       args.Height,
			Difficulty:   args.Difficulty,
		}

		return b, nil
	}

	return Block{}, errors.Wrapf(ErrMiningExhausted, "height %d after %d attempts", args.Height, maxNonce)
}

// ComputeHash recalculates the proof of work hash from the block contents.
func (b Block) ComputeHash() ([]byte, error) {
	digest, err := TransactionsDigest(b.Transactions)
	if err != nil {
		return nil, err
	}

	return signature.SHA256(powData(b.PrevHash, digest, b.Timestamp, b.Difficulty, b.Nonce)), nil
}

// ValidatePOW checks the stored hash matches the block contents and is
// below the target for the block difficulty.
func (b Block) ValidatePOW() error {
	if err := validateDifficulty(b.Difficulty); err != nil {
		return err
	}

	if len(b.Transactions) == 0 {
		return errors.Wrapf(ErrInvalidBlock, "block %x has no transactions", b.Hash)
	}

	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}

	if !bytes.Equal(hash, b.Hash) {
		return errors.Wrapf(ErrInvalidBlock, "hash mismatch, got %x, exp %x", b.Hash, hash)
	}

	if new(big.Int).SetBytes(hash).Cmp(Target(b.Difficulty)) >= 0 {
		return errors.Wrapf(ErrInvalidBlock, "hash %x is not below the target", hash)
	}

	return nil
}

// HashHex returns the hex form of the block hash.
func (b Block) HashHex() string {
	return hex.EncodeToString(b.Hash)
}

// Serialize encodes the block for storage and the wire.
func (b Block) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

// DeserializeBlock decodes a block produced by Serialize.
func DeserializeBlock(data []byte) (Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return Block{}, errors.Wrap(err, "deserialize block")
	}

	return b, nil
}

// =============================================================================

// Target returns the value a block hash must be below for the difficulty.
func Target(difficulty int64) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(256-difficulty))
}

// TransactionsDigest computes the merkle root over the ids of the
// transactions in block order.
func TransactionsDigest(txs []Transaction) ([]byte, error) {
	if len(txs) == 0 {
		return nil, errors.Wrap(ErrInvalidBlock, "no transactions to digest")
	}

	return merkle.Root(txLeafs(txs))
}

// MerkleProof shows a transaction is covered by the merkle root of a block.
// Path holds the sibling hashes from the leaf up, Order says if each sibling
// is hashed before (0) or after (1) the running sum.
type MerkleProof struct {
	BlockHash hexutil.Bytes   `json:"block_hash"`
	TxID      hexutil.Bytes   `json:"txid"`
	Root      string          `json:"root"`
	Path      []hexutil.Bytes `json:"path"`
	Order     []int64         `json:"order"`
}

// Proof builds the inclusion proof for the transaction with the id.
func (b Block) Proof(txID []byte) (MerkleProof, error) {
	if len(b.Transactions) == 0 {
		return MerkleProof{}, errors.Wrapf(ErrInvalidBlock, "block %x has no transactions", b.Hash)
	}

	tree, err := merkle.NewTree(txLeafs(b.Transactions))
	if err != nil {
		return MerkleProof{}, err
	}

	path, order, err := tree.Proof(txLeaf{id: txID})
	if err != nil {
		if errors.Is(err, merkle.ErrNotFound) {
			return MerkleProof{}, errors.Wrapf(ErrTransactionNotFound, "transaction %x in block %x", txID, b.Hash)
		}
		return MerkleProof{}, err
	}

	p := MerkleProof{
		BlockHash: b.Hash,
		TxID:      txID,
		Root:      tree.RootHex(),
		Path:      make([]hexutil.Bytes, len(path)),
		Order:     order,
	}
	for i, h := range path {
		p.Path[i] = h
	}

	return p, nil
}

// Verify recomputes the merkle root from the transaction id and the path.
func (p MerkleProof) Verify() error {
	root, err := hexutil.Decode(p.Root)
	if err != nil {
		return errors.Wrapf(ErrInvalidBlock, "merkle root %q: %s", p.Root, err)
	}

	leafHash, err := txLeaf{id: p.TxID}.Hash()
	if err != nil {
		return err
	}

	path := make([][]byte, len(p.Path))
	for i, h := range p.Path {
		path[i] = h
	}

	ok, err := merkle.VerifyProof(root, leafHash, path, p.Order, nil)
	if err != nil {
		return errors.Wrapf(ErrInvalidBlock, "merkle proof: %s", err)
	}

	if !ok {
		return errors.Wrapf(ErrInvalidBlock, "transaction %x does not hash to root %s", []byte(p.TxID), p.Root)
	}

	return nil
}

func txLeafs(txs []Transaction) []txLeaf {
	leafs := make([]txLeaf, len(txs))
	for i, tx := range txs {
		leafs[i] = txLeaf{id: tx.ID}
	}

	return leafs
}

// txLeaf adapts a transaction id to the merkle Hashable interface.
type txLeaf struct {
	id []byte
}

// Hash implements the merkle Hashable interface.
func (l txLeaf) Hash() ([]byte, error) {
	return signature.SHA256(l.id), nil
}

// Equals implements the merkle Hashable interface.
func (l txLeaf) Equals(other txLeaf) bool {
	return bytes.Equal(l.id, other.id)
}

// powData lays out the fields covered by the proof of work.
func powData(prevHash []byte, digest []byte, timestamp int64, difficulty int64, nonce int64) []byte {
	data := make([]byte, 0, len(prevHash)+len(digest)+24)
	data = append(data, prevHash...)
	data = append(data, digest...)
	data = binary.BigEndian.AppendUint64(data, uint64(timestamp))
	data = binary.BigEndian.AppendUint64(data, uint64(difficulty))
	data = binary.BigEndian.AppendUint64(data, uint64(nonce))

	return data
}

func validateDifficulty(difficulty int64) error {
	if difficulty < 1 || difficulty > 255 {
		return errors.Wrapf(ErrInvalidBlock, "difficulty %d out of range", difficulty)
	}

	return nil
}
