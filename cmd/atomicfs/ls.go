package atomicfs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/atomicfs/internal/afs"
)

var lsCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List a directory's entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(h *handle) error {
			dir, err := resolvePath(h.afs, args[0])
			if err != nil {
				return err
			}

			last := ""
			for {
				entries, reachedEnd, err := h.afs.DirRead(dir, last)
				if err != nil {
					return err
				}
				for _, e := range entries {
					kind := "file"
					if e.Type == afs.ObjTypeDir {
						kind = "dir"
					}
					fmt.Printf("%-5s %s\n", kind, e.Name)
					last = e.Name
				}
				if reachedEnd {
					break
				}
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
