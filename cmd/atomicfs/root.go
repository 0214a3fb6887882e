// Package atomicfs implements the atomicfs command-line tool: a
// read-write explorer and editor for atomicfs stores, analogous to the
// teacher's read-only cmd/ tree but writing through the AFS/JBS stack
// instead of merely inspecting an on-disk format.
package atomicfs

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/atomicfs/internal/atomicfslog"
)

var (
	storePathFlag string
	configFlag    string
	verbose       bool
	quiet         bool
	outputFormat  string

	logger atomicfslog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "atomicfs",
	Short: "Durable transactional block-storage filesystem explorer and editor",
	Long: `atomicfs opens a journaled-block-store-backed abstract filesystem and
lets you create, read, write, move, and delete directories and files
directly against it, the same way the underlying Afs/Store pair is driven
from Go code.

Commands:
  init    Format a new store
  mkdir   Create a directory
  ls      List a directory's entries
  cat     Print a file's contents
  put     Write a local file's contents into the store
  rm      Delete a directory or file
  mv      Move/rename an object
  stat    Show an object's metadata
  df      Show free space and store statistics
  fsck    Walk the tree checking basic invariants`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePathFlag, "store", "", "path to the store's data file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to a config file (YAML/TOML/INI)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format; accepted but ignored, all commands print plain text")

	cobra.OnInitialize(func() {
		switch {
		case verbose:
			logger = atomicfslog.New(os.Stderr, zerolog.DebugLevel)
		case quiet:
			logger = atomicfslog.Nop()
		default:
			logger = atomicfslog.Default()
		}
	})
}
