package atomicfs

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var mvCmd = &cobra.Command{
	Use:   "mv <src-path> <dst-path>",
	Short: "Move or rename an object",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(h *handle) error {
			srcParent, srcName, err := splitParentName(h.afs, args[0])
			if err != nil {
				return err
			}
			dstParent, dstName, err := splitParentName(h.afs, args[1])
			if err != nil {
				return err
			}
			if err := h.afs.ObjMove(srcParent, srcName, dstParent, dstName, time.Now()); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("moved %s -> %s\n", args[0], args[1])
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(mvCmd)
}
