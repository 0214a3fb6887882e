package atomicfs

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove an empty directory or a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(h *handle) error {
			parent, name, err := splitParentName(h.afs, args[0])
			if err != nil {
				return err
			}
			if err := h.afs.ObjDelete(parent, name, time.Now()); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("removed %s\n", args[0])
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
