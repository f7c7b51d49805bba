package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrWalletNotFound is returned when an address has no stored keypair.
var ErrWalletNotFound = errors.New("wallet not found")

// walletPrefix is the key prefix for persisted wallets.
var walletPrefix = []byte("wallet-")

// record is what is persisted for every wallet.
type record struct {
	PrivateKey hexutil.Bytes `json:"private_key"`
	Mnemonic   string        `json:"mnemonic,omitempty"`
}

// Wallets manages the set of wallets persisted in a store, keyed by address.
type Wallets struct {
	store storage.Store
}

// NewWallets constructs the wallet set on top of the store.
func NewWallets(store storage.Store) *Wallets {
	return &Wallets{store: store}
}

// Add persists the wallet and returns its address.
func (ws *Wallets) Add(w Wallet) (string, error) {
	address := w.Address()

	data, err := json.Marshal(record{
		PrivateKey: crypto.FromECDSA(w.PrivateKey),
		Mnemonic:   w.Mnemonic,
	})
	if err != nil {
		return "", err
	}

	err = ws.store.Update(func(txn storage.Txn) error {
		return txn.Set(storage.WithPrefix(walletPrefix, []byte(address)), data)
	})
	if err != nil {
		return "", err
	}

	return address, nil
}

// Get loads the wallet for the address.
func (ws *Wallets) Get(address string) (Wallet, error) {
	var data []byte
	err := ws.store.View(func(txn storage.Txn) error {
		var err error
		data, err = txn.Get(storage.WithPrefix(walletPrefix, []byte(address)))
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Wallet{}, fmt.Errorf("%s: %w", address, ErrWalletNotFound)
		}
		return Wallet{}, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Wallet{}, fmt.Errorf("decoding wallet %s: %w", address, err)
	}

	privateKey, err := crypto.ToECDSA(rec.PrivateKey)
	if err != nil {
		return Wallet{}, fmt.Errorf("decoding wallet %s: %w", address, err)
	}

	w := FromPrivateKey(privateKey)
	w.Mnemonic = rec.Mnemonic

	return w, nil
}

// Addresses returns the sorted list of stored addresses.
func (ws *Wallets) Addresses() ([]string, error) {
	var addresses []string
	err := ws.store.View(func(txn storage.Txn) error {
		return txn.Iterate(walletPrefix, func(key []byte, value []byte) error {
			addresses = append(addresses, strings.TrimPrefix(string(key), string(walletPrefix)))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(addresses)

	return addresses, nil
}
