package atomicfs

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dfStats bool

var dfCmd = &cobra.Command{
	Use:   "df",
	Short: "Print store capacity and free space",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(h *handle) error {
			blockSize := uint64(h.store.BlockSize())
			used := h.store.NrBlocks()
			max := h.store.MaxNrBlocks()
			free := h.afs.FreeSpaceBlocks()

			fmt.Printf("block_size:    %d\n", blockSize)
			fmt.Printf("blocks_used:   %d\n", used)
			if max > 0 {
				fmt.Printf("blocks_max:    %d\n", max)
			} else {
				fmt.Printf("blocks_max:    unbounded\n")
			}
			fmt.Printf("blocks_free:   %d\n", free)
			fmt.Printf("bytes_free:    %d\n", h.afs.FreeSpaceBytes())

			if dfStats {
				fmt.Printf("cache_hits:    %d\n", h.store.NrCacheHits())
				fmt.Printf("cache_misses:  %d\n", h.store.NrCacheMisses())
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dfCmd)
	dfCmd.Flags().BoolVar(&dfStats, "stats", false, "include cache hit/miss counters")
}
