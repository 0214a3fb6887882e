package atomicfs

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/atomicfs/internal/afs"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Walk the entire tree, verifying every directory and file reads back cleanly",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(h *handle) error {
			w := &walker{afs: h.afs}
			if err := w.walkDir(h.afs.Root(), "/"); err != nil {
				return fmt.Errorf("fsck failed at some point during traversal: %w", err)
			}
			fmt.Printf("ok: %d dirs, %d files, %d bytes of content\n", w.nrDirs, w.nrFiles, w.nrBytes)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}

type walker struct {
	afs     *afs.Afs
	nrDirs  int
	nrFiles int
	nrBytes uint64
}

func (w *walker) walkDir(dir afs.ObjId, dirPath string) error {
	w.nrDirs++
	last := ""
	for {
		entries, reachedEnd, err := w.afs.DirRead(dir, last)
		if err != nil {
			return fmt.Errorf("reading %s: %w", dirPath, err)
		}
		for _, e := range entries {
			childPath := path.Join(dirPath, e.Name)
			info, err := w.afs.ObjStat(e.Id)
			if err != nil {
				return fmt.Errorf("stat %s: %w", childPath, err)
			}
			switch e.Type {
			case afs.ObjTypeDir:
				if err := w.walkDir(e.Id, childPath); err != nil {
					return err
				}
			case afs.ObjTypeFile:
				w.nrFiles++
				if err := w.afs.FileRead(e.Id, 0, info.SizeBytes, func(data []byte, atEnd bool) error {
					w.nrBytes += uint64(len(data))
					return nil
				}); err != nil {
					return fmt.Errorf("reading %s: %w", childPath, err)
				}
			}
			last = e.Name
		}
		if reachedEnd {
			break
		}
	}
	return nil
}
