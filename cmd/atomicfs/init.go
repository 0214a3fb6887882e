package atomicfs

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/atomicfs/internal/afs"
	"github.com/deploymenttheory/atomicfs/internal/config"
	"github.com/deploymenttheory/atomicfs/internal/jbs"
)

var initMetaData string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Format a new store at --store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initMetaData, "meta", "", "root directory metadata")
}

func runInit() error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if storePathFlag != "" {
		cfg.StorePath = storePathFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	consistency, err := cfg.ConsistencyLevel()
	if err != nil {
		return err
	}

	store := jbs.New(jbs.WithLogger(logger))
	if err := store.Open(cfg.StorePath, cfg.BlockSize, consistency); err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()
	if cfg.MaxSizeBytes > 0 {
		store.SetMaxSizeBytes(cfg.MaxSizeBytes)
	}

	a := afs.New(store, afs.WithLogger(logger), afs.WithNameComparer(resolveComparer(cfg.NameComparer)))
	if err := a.Init([]byte(initMetaData), uint64(time.Now().Unix())); err != nil {
		return fmt.Errorf("initializing filesystem: %w", err)
	}

	fmt.Printf("initialized store at %s (block size %d)\n", cfg.StorePath, cfg.BlockSize)
	return nil
}
