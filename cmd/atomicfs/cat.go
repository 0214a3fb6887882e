package atomicfs

import (
	"os"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file's contents to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(h *handle) error {
			id, err := resolvePath(h.afs, args[0])
			if err != nil {
				return err
			}
			info, err := h.afs.ObjStat(id)
			if err != nil {
				return err
			}
			return h.afs.FileRead(id, 0, info.SizeBytes, func(data []byte, reachedEnd bool) error {
				if len(data) == 0 {
					return nil
				}
				_, err := os.Stdout.Write(data)
				return err
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
