package atomicfs

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/atomicfs/internal/afs"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Print an object's metadata",
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

			kind := "file"
			if info.Type == afs.ObjTypeDir {
				kind = "dir"
			}
			fmt.Printf("path:         %s\n", args[0])
			fmt.Printf("id:           %s\n", info.Id)
			fmt.Printf("type:         %s\n", kind)
			fmt.Printf("parent:       %s\n", info.ParentId)
			fmt.Printf("create_time:  %d\n", info.CreateTime)
			fmt.Printf("modify_time:  %d\n", info.ModifyTime)
			if info.Type == afs.ObjTypeDir {
				fmt.Printf("nr_entries:   %d\n", info.NrEntries)
			} else {
				fmt.Printf("size_bytes:   %d\n", info.SizeBytes)
			}
			fmt.Printf("meta_bytes:   %d\n", len(info.MetaData))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}
