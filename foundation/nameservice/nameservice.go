// Package nameservice reads a folder of key files and creates a name
// service lookup for the addresses they control.
package nameservice

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/crypto"
)

// keyExtension is the extension of the key files that are read.
const keyExtension = ".ecdsa"

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	addresses map[string]string
}

// New constructs a name service with the addresses of the key files found
// under root. The name of an address is its key file name. A missing root
// yields an empty name service.
func New(root string) (*NameService, error) {
	ns := NameService{
		addresses: make(map[string]string),
	}

	fn := func(fileName string, d fs.DirEntry, err error) error {
		if err != nil {
			if fileName == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if d.IsDir() || filepath.Ext(fileName) != keyExtension {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}

		address := wallet.FromPrivateKey(privateKey).Address()
		ns.addresses[address] = strings.TrimSuffix(filepath.Base(fileName), keyExtension)

		return nil
	}

	if err := filepath.WalkDir(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified address. An unknown address is
// its own name, as is every address on a nil name service.
func (ns *NameService) Lookup(address string) string {
	if ns == nil {
		return address
	}

	name, exists := ns.addresses[address]
	if !exists {
		return address
	}
	return name
}

// Copy returns a copy of the map of addresses and names.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.addresses))
	for address, name := range ns.addresses {
		cpy[address] = name
	}
	return cpy
}
