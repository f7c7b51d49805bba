// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"os"
	"time"
)

// Genesis represents the genesis file. Every node sharing the same genesis
// file produces the same genesis block.
type Genesis struct {
	Date          time.Time `json:"date"`            // Timestamp of the genesis block.
	TransPerBlock uint16    `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	Difficulty    int64     `json:"difficulty"`      // Number of leading zero bits the block hash needs.
	Subsidy       int64     `json:"subsidy"`         // Reward for mining a block.
	Address       string    `json:"address"`         // Receives the genesis coinbase.
	CoinbaseData  string    `json:"coinbase_data"`   // Data embedded in the genesis coinbase.
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis file.
func Save(path string, genesis Genesis) error {
	if err := genesis.Validate(); err != nil {
		return err
	}

	content, err := json.MarshalIndent(genesis, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, content, 0644)
}

// Validate checks the settings are usable.
func (g Genesis) Validate() error {
	switch {
	case g.Difficulty < 1 || g.Difficulty > 255:
		return errors.New("genesis difficulty must be between 1 and 255")
	case g.Subsidy <= 0:
		return errors.New("genesis subsidy must be positive")
	case g.Address == "":
		return errors.New("genesis address is required")
	case g.TransPerBlock == 0:
		return errors.New("genesis trans per block must be positive")
	}

	return nil
}
