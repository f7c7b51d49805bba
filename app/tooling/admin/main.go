// This program performs administrative tasks against a node's chain
// database. The node must not be running while these commands run.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/ledger/app/tooling/admin/commands"
	"github.com/ardanlabs/ledger/foundation/blockchain/database"
	"github.com/ardanlabs/ledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/ledger/foundation/blockchain/storage/engine"
	"github.com/ardanlabs/ledger/foundation/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

var (
	dbEngine    string
	dbPath      string
	genesisPath string
)

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := rootCmd(log).Execute(); err != nil {
		log.Sync()
		os.Exit(1)
	}
}

func rootCmd(log *zap.SugaredLogger) *cobra.Command {
	root := cobra.Command{
		Use:          "admin",
		Short:        "Administrative tasks for a ledger node",
		Version:      build,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&dbEngine, "db-engine", engine.Badger, "Storage engine of the node: badger or leveldb.")
	root.PersistentFlags().StringVar(&dbPath, "db-path", "zblock/blocks.db", "Path to the node's chain database.")
	root.PersistentFlags().StringVar(&genesisPath, "genesis", "zblock/genesis.json", "Path to the genesis file.")

	root.AddCommand(genesisCmd(), printChainCmd(log), reindexCmd(log), balanceCmd(log))

	return &root
}

func genesisCmd() *cobra.Command {
	var cfg commands.GenesisConfig

	cmd := cobra.Command{
		Use:   "genesis",
		Short: "Write a genesis file and the key file of the address it pays",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.GenesisPath = genesisPath
			return commands.Genesis(cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.KeyFile, "key-file", "zblock/accounts/miner1.ecdsa", "Key file for the genesis address. Created if missing.")
	cmd.Flags().Int64Var(&cfg.Difficulty, "difficulty", 16, "Leading zero bits every block hash needs.")
	cmd.Flags().Int64Var(&cfg.Subsidy, "subsidy", 10, "Reward for mining a block.")
	cmd.Flags().Uint16Var(&cfg.TransPerBlock, "trans-per-block", 10, "Maximum number of transactions in a block.")
	cmd.Flags().StringVar(&cfg.CoinbaseData, "coinbase-data", "ledger genesis block", "Data embedded in the genesis coinbase.")
	cmd.Flags().DurationVar(&cfg.Age, "age", 0, "How far in the past to date the genesis block.")

	return &cmd
}

func printChainCmd(log *zap.SugaredLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "printchain",
		Short: "Print every block from the tip to genesis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChain(log, func(chain *database.Blockchain) error {
				return commands.PrintChain(os.Stdout, chain)
			})
		},
	}
}

func reindexCmd(log *zap.SugaredLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the unspent output index from the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChain(log, func(chain *database.Blockchain) error {
				return commands.Reindex(os.Stdout, chain)
			})
		},
	}
}

func balanceCmd(log *zap.SugaredLogger) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Print the confirmed balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChain(log, func(chain *database.Blockchain) error {
				return commands.Balance(os.Stdout, chain, args[0])
			})
		},
	}
}

// withChain opens the chain database for the duration of the function.
func withChain(log *zap.SugaredLogger, fn func(chain *database.Blockchain) error) error {
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}

	store, err := engine.Open(engine.Config{
		Engine: dbEngine,
		Path:   dbPath,
		Log:    log,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ev := func(v string, args ...any) {
		log.Infow(fmt.Sprintf(v, args...), "traceid", "00000000-0000-0000-0000-000000000000")
	}

	start := time.Now()
	defer func() {
		log.Infow("admin", "status", "completed", "since", time.Since(start))
	}()

	chain, err := database.Open(database.Config{
		Store:     store,
		Genesis:   gen,
		EvHandler: ev,
	})
	if err != nil {
		return fmt.Errorf("opening blockchain: %w", err)
	}

	return fn(chain)
}
