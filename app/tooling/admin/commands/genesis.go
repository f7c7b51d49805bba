// Package commands contains the functionality for the set of commands
// currently supported by the admin tooling.
package commands

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenesisConfig represents the settings of a new genesis file.
type GenesisConfig struct {
	GenesisPath   string
	KeyFile       string
	Difficulty    int64
	Subsidy       int64
	TransPerBlock uint16
	CoinbaseData  string
	Age           time.Duration
}

// Genesis writes a genesis file paying the key file's address. A key file
// that does not exist yet is generated.
func Genesis(cfg GenesisConfig) error {
	privateKey, err := loadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return err
	}

	gen := genesis.Genesis{
		Date:          time.Now().UTC().Add(-cfg.Age).Truncate(time.Millisecond),
		TransPerBlock: cfg.TransPerBlock,
		Difficulty:    cfg.Difficulty,
		Subsidy:       cfg.Subsidy,
		Address:       wallet.FromPrivateKey(privateKey).Address(),
		CoinbaseData:  cfg.CoinbaseData,
	}

	if err := gen.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.GenesisPath), 0755); err != nil {
		return err
	}

	if err := genesis.Save(cfg.GenesisPath, gen); err != nil {
		return err
	}

	fmt.Printf("Genesis: %s\nAddress: %s\nKey:     %s\n", cfg.GenesisPath, gen.Address, cfg.KeyFile)

	return nil
}

func loadOrCreateKey(path string) (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err == nil {
		return privateKey, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading key file: %w", err)
	}

	privateKey, err = crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	if err := crypto.SaveECDSA(path, privateKey); err != nil {
		return nil, fmt.Errorf("saving key file: %w", err)
	}

	return privateKey, nil
}
