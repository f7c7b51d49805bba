package database

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ardanlabs/ledger/foundation/blockchain/signature"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CoinbaseIndex is the output index a coinbase input points at.
const CoinbaseIndex = -1

// =============================================================================

// OutPoint identifies a single output of a transaction.
type OutPoint struct {
	TxID  string `json:"txid"` // Hex encoded transaction id.
	Index int    `json:"index"`
}

// NewOutPoint constructs the outpoint for the transaction id and index.
func NewOutPoint(txID []byte, index int) OutPoint {
	return OutPoint{
		TxID:  hex.EncodeToString(txID),
		Index: index,
	}
}

// String implements the Stringer interface for logging.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxID, op.Index)
}

// =============================================================================

// TXInput references a single output of a previous transaction.
type TXInput struct {
	TxID      hexutil.Bytes `json:"txid"`
	OutIndex  int           `json:"out_index"`
	Signature hexutil.Bytes `json:"signature"`
	PubKey    hexutil.Bytes `json:"pub_key"`
}

// OutPoint returns the output this input consumes.
func (in TXInput) OutPoint() OutPoint {
	return NewOutPoint(in.TxID, in.OutIndex)
}

// UsesKey checks the input was signed by the owner of the locking hash.
func (in TXInput) UsesKey(pubKeyHash []byte) bool {
	return bytes.Equal(signature.HashPubKey(in.PubKey), pubKeyHash)
}

// TXOutput is an amount locked to a public key hash.
type TXOutput struct {
	Value      int64         `json:"value"`
	PubKeyHash hexutil.Bytes `json:"pub_key_hash"`
}

// NewTXOutput locks the value to the address.
func NewTXOutput(value int64, address string) (TXOutput, error) {
	pubKeyHash, err := wallet.PubKeyHashFromAddress(address)
	if err != nil {
		return TXOutput{}, errors.Wrapf(err, "address %q", address)
	}

	out := TXOutput{
		Value:      value,
		PubKeyHash: pubKeyHash,
	}

	return out, nil
}

// IsLockedWith checks the output belongs to the locking hash.
func (out TXOutput) IsLockedWith(pubKeyHash []byte) bool {
	return bytes.Equal(out.PubKeyHash, pubKeyHash)
}

// =============================================================================

// Transaction moves value from previous outputs to new outputs.
type Transaction struct {
	ID      hexutil.Bytes `json:"id"`
	Inputs  []TXInput     `json:"inputs"`
	Outputs []TXOutput    `json:"outputs"`
}

// NewCoinbase constructs the reward transaction for a block. The data is
// embedded in the input so coinbases to the same address have different
// ids. When no data is provided a random uuid is used.
func NewCoinbase(to string, subsidy int64, data string) (Transaction, error) {
	if data == "" {
		data = uuid.NewString()
	}

	out, err := NewTXOutput(subsidy, to)
	if err != nil {
		return Transaction{}, err
	}

	tx := Transaction{
		Inputs: []TXInput{
			{
				OutIndex:  CoinbaseIndex,
				Signature: []byte(data),
			},
		},
		Outputs: []TXOutput{out},
	}

	if tx.ID, err = tx.Hash(); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// NewSpend constructs and signs a transaction moving amount from the wallet
// to the address. Outputs are selected in a deterministic order and any
// excess is returned to the wallet as change.
func NewSpend(from wallet.Wallet, to string, amount int64, finder SpendableFinder) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, errors.Wrapf(ErrInvalidTransaction, "amount %d must be positive", amount)
	}

	toOut, err := NewTXOutput(amount, to)
	if err != nil {
		return Transaction{}, err
	}

	accumulated, unspent, err := finder.FindSpendable(from.PubKeyHash(), amount)
	if err != nil {
		return Transaction{}, err
	}

	if accumulated < amount {
		return Transaction{}, errors.Wrapf(ErrInsufficientFunds, "have %d, need %d", accumulated, amount)
	}

	var tx Transaction
	prevOutputs := make(map[OutPoint]TXOutput, len(unspent))

	for _, u := range unspent {
		txID, err := hex.DecodeString(u.OutPoint.TxID)
		if err != nil {
			return Transaction{}, errors.Wrapf(ErrInvalidTransaction, "outpoint %s", u.OutPoint)
		}

		tx.Inputs = append(tx.Inputs, TXInput{TxID: txID, OutIndex: u.OutPoint.Index})
		prevOutputs[u.OutPoint] = u.Output
	}

	tx.Outputs = append(tx.Outputs, toOut)
	if accumulated > amount {
		change := TXOutput{
			Value:      accumulated - amount,
			PubKeyHash: from.PubKeyHash(),
		}
		tx.Outputs = append(tx.Outputs, change)
	}

	if tx.ID, err = tx.Hash(); err != nil {
		return Transaction{}, err
	}

	if err := tx.Sign(from.PrivateKey, prevOutputs); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// IsCoinbase reports if the transaction is a block reward.
func (tx Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && len(tx.Inputs[0].TxID) == 0 && tx.Inputs[0].OutIndex == CoinbaseIndex
}

// Hash computes the id of the transaction. Input signatures and public keys
// are blanked first so the id is stable across signing. A coinbase input
// keeps its embedded data.
func (tx Transaction) Hash() ([]byte, error) {
	cpy := Transaction{
		Inputs:  make([]TXInput, len(tx.Inputs)),
		Outputs: tx.Outputs,
	}

	coinbase := tx.IsCoinbase()
	for i, in := range tx.Inputs {
		cpy.Inputs[i] = TXInput{TxID: in.TxID, OutIndex: in.OutIndex}
		if coinbase {
			cpy.Inputs[i].Signature = in.Signature
		}
	}

	data, err := json.Marshal(cpy)
	if err != nil {
		return nil, err
	}

	return signature.SHA256(data), nil
}

// IDHex returns the hex form of the transaction id.
func (tx Transaction) IDHex() string {
	return hex.EncodeToString(tx.ID)
}

// Value returns the sum of all the outputs, capped at math.MaxInt64.
func (tx Transaction) Value() int64 {
	var total int64
	for _, out := range tx.Outputs {
		sum, ok := addValue(total, out.Value)
		if !ok {
			return math.MaxInt64
		}
		total = sum
	}

	return total
}

// Serialize encodes the transaction for storage and the wire.
func (tx Transaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// DeserializeTransaction decodes a transaction produced by Serialize.
func DeserializeTransaction(data []byte) (Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return Transaction{}, errors.Wrap(err, "deserialize transaction")
	}

	return tx, nil
}

// String implements the Stringer interface for logging.
func (tx Transaction) String() string {
	return fmt.Sprintf("%s: ins[%d] outs[%d] value[%d]", tx.IDHex(), len(tx.Inputs), len(tx.Outputs), tx.Value())
}

// =============================================================================

// TrimmedCopy produces the value that gets signed for one input. Every
// input has its signature and public key removed except the input being
// signed, whose public key is replaced with the locking hash of the output
// it spends. The original transaction is not modified.
func TrimmedCopy(tx Transaction, inputIndex int, prevOutput TXOutput) Transaction {
	cpy := Transaction{
		ID:      bytes.Clone(tx.ID),
		Inputs:  make([]TXInput, len(tx.Inputs)),
		Outputs: make([]TXOutput, len(tx.Outputs)),
	}

	for i, in := range tx.Inputs {
		cpy.Inputs[i] = TXInput{
			TxID:     bytes.Clone(in.TxID),
			OutIndex: in.OutIndex,
		}
	}
	cpy.Inputs[inputIndex].PubKey = bytes.Clone(prevOutput.PubKeyHash)

	for i, out := range tx.Outputs {
		cpy.Outputs[i] = TXOutput{
			Value:      out.Value,
			PubKeyHash: bytes.Clone(out.PubKeyHash),
		}
	}

	return cpy
}

// Sign signs every input with the private key. The previous outputs must
// contain the output spent by every input.
func (tx *Transaction) Sign(privateKey *ecdsa.PrivateKey, prevOutputs map[OutPoint]TXOutput) error {
	if tx.IsCoinbase() {
		return nil
	}

	publicKey := signature.PublicKeyBytes(&privateKey.PublicKey)

	for i, in := range tx.Inputs {
		prev, exists := prevOutputs[in.OutPoint()]
		if !exists {
			return errors.Wrapf(ErrInvalidTransaction, "input %d: previous output %s not found", i, in.OutPoint())
		}

		digest, err := signature.Digest(TrimmedCopy(*tx, i, prev))
		if err != nil {
			return err
		}

		sig, err := signature.Sign(digest, privateKey)
		if err != nil {
			return err
		}

		tx.Inputs[i].Signature = sig
		tx.Inputs[i].PubKey = publicKey
	}

	return nil
}

// Verify checks the transaction against the outputs it spends. A coinbase
// always verifies. Otherwise every input must reference a known output,
// be signed by the key the output is locked to, and the outputs must not
// create value.
func (tx Transaction) Verify(prevOutputs map[OutPoint]TXOutput) error {
	id, err := tx.Hash()
	if err != nil {
		return err
	}

	if !bytes.Equal(id, tx.ID) {
		return errors.Wrapf(ErrInvalidTransaction, "id %s does not match contents", tx.IDHex())
	}

	if tx.IsCoinbase() {
		return nil
	}

	if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
		return errors.Wrapf(ErrInvalidTransaction, "%s: inputs and outputs are required", tx.IDHex())
	}

	var inputValue int64
	seen := make(map[OutPoint]bool, len(tx.Inputs))

	for i, in := range tx.Inputs {
		op := in.OutPoint()
		if seen[op] {
			return errors.Wrapf(ErrInvalidTransaction, "%s: input %d spends %s twice", tx.IDHex(), i, op)
		}
		seen[op] = true

		prev, exists := prevOutputs[op]
		if !exists {
			return errors.Wrapf(ErrInvalidTransaction, "%s: input %d: previous output %s not found", tx.IDHex(), i, op)
		}

		if !in.UsesKey(prev.PubKeyHash) {
			return errors.Wrapf(ErrInvalidSignature, "%s: input %d: public key does not own %s", tx.IDHex(), i, op)
		}

		digest, err := signature.Digest(TrimmedCopy(tx, i, prev))
		if err != nil {
			return err
		}

		if err := signature.Verify(digest, in.Signature, in.PubKey); err != nil {
			return errors.Wrapf(ErrInvalidSignature, "%s: input %d: %s", tx.IDHex(), i, err)
		}

		sum, ok := addValue(inputValue, prev.Value)
		if !ok {
			return errors.Wrapf(ErrInvalidTransaction, "%s: input %d: input total overflows", tx.IDHex(), i)
		}
		inputValue = sum
	}

	var outputValue int64
	for i, out := range tx.Outputs {
		if out.Value <= 0 {
			return errors.Wrapf(ErrInvalidTransaction, "%s: output %d has no value", tx.IDHex(), i)
		}

		sum, ok := addValue(outputValue, out.Value)
		if !ok {
			return errors.Wrapf(ErrInvalidTransaction, "%s: output %d: output total overflows", tx.IDHex(), i)
		}
		outputValue = sum
	}

	if outputValue > inputValue {
		return errors.Wrapf(ErrInvalidTransaction, "%s: outputs %d exceed inputs %d", tx.IDHex(), outputValue, inputValue)
	}

	return nil
}

// =============================================================================

// UnspentOutput is an output that has not been consumed yet.
type UnspentOutput struct {
	OutPoint OutPoint `json:"outpoint"`
	Output   TXOutput `json:"output"`
}

// SpendableFinder represents the behavior required to select outputs for a
// new transaction.
type SpendableFinder interface {
	FindSpendable(pubKeyHash []byte, amount int64) (int64, []UnspentOutput, error)
}

// UnspentList is a set of unspent outputs that can select outputs on its
// own. It is used when the outputs were fetched from a remote node.
type UnspentList []UnspentOutput

// Sort orders the list by transaction id then output index.
func (ul UnspentList) Sort() {
	sort.Slice(ul, func(i, j int) bool {
		if ul[i].OutPoint.TxID != ul[j].OutPoint.TxID {
			return ul[i].OutPoint.TxID < ul[j].OutPoint.TxID
		}
		return ul[i].OutPoint.Index < ul[j].OutPoint.Index
	})
}

// FindSpendable walks the outputs locked to the hash in (txid, index) order
// and accumulates value until the amount is covered.
func (ul UnspentList) FindSpendable(pubKeyHash []byte, amount int64) (int64, []UnspentOutput, error) {
	sorted := make(UnspentList, len(ul))
	copy(sorted, ul)
	sorted.Sort()

	var accumulated int64
	var selected []UnspentOutput

	for _, u := range sorted {
		if accumulated >= amount {
			break
		}

		if !u.Output.IsLockedWith(pubKeyHash) {
			continue
		}

		sum, ok := addValue(accumulated, u.Output.Value)
		if !ok {
			return 0, nil, errors.Wrapf(ErrInvalidTransaction, "unspent output %s overflows the total", u.OutPoint)
		}
		accumulated = sum
		selected = append(selected, u)
	}

	return accumulated, selected, nil
}

// Balance sums the outputs locked to the hash, capped at math.MaxInt64.
func (ul UnspentList) Balance(pubKeyHash []byte) int64 {
	var balance int64
	for _, u := range ul {
		if !u.Output.IsLockedWith(pubKeyHash) {
			continue
		}

		sum, ok := addValue(balance, u.Output.Value)
		if !ok {
			return math.MaxInt64
		}
		balance = sum
	}

	return balance
}

// addValue adds an amount to a running total. It reports false when the
// amount is negative or the total would overflow.
func addValue(total int64, value int64) (int64, bool) {
	if value < 0 || total > math.MaxInt64-value {
		return total, false
	}

	return total + value, true
}
