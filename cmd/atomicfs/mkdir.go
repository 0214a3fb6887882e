package atomicfs

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var mkdirMetaData string

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(h *handle) error {
			parent, name, err := splitParentName(h.afs, args[0])
			if err != nil {
				return err
			}
			id, err := h.afs.DirCreate(parent, name, []byte(mkdirMetaData), time.Now())
			if err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("created %s %s\n", args[0], id)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(mkdirCmd)
	mkdirCmd.Flags().StringVar(&mkdirMetaData, "meta", "", "directory metadata")
}
