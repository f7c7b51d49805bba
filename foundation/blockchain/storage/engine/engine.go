// Package engine selects and opens a storage engine by name.
package engine

import (
	"fmt"

	"github.com/ardanlabs/ledger/foundation/blockchain/storage"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/badgerdb"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/leveldb"
	"go.uber.org/zap"
)

// Set of engines that can be opened.
const (
	Badger  = "badger"
	LevelDB = "leveldb"
	Memory  = "memory"
)

// Config represents the settings required to open an engine. Log is
// optional.
type Config struct {
	Engine string
	Path   string
	Log    *zap.SugaredLogger
}

// Open opens the configured engine.
func Open(cfg Config) (storage.Store, error) {
	switch cfg.Engine {
	case Badger:
		return badgerdb.Open(cfg.Path, cfg.Log)
	case LevelDB:
		return leveldb.Open(cfg.Path)
	case Memory:
		return leveldb.NewMemory()
	}

	return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
}
