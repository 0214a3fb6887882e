package atomicfs

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const putChunkBytes = 256 * 1024

var (
	putMetaData string
	putSrc      string
)

var putCmd = &cobra.Command{
	Use:   "put <dest-path>",
	Short: "Write stdin (or --src) to a file, creating it if necessary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(h *handle) error {
			in := os.Stdin
			if putSrc != "" {
				f, err := os.Open(putSrc)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			now := time.Now()
			id, err := resolvePath(h.afs, args[0])
			if err != nil {
				parent, name, splitErr := splitParentName(h.afs, args[0])
				if splitErr != nil {
					return splitErr
				}
				id, err = h.afs.FileCreate(parent, name, []byte(putMetaData), now)
				if err != nil {
					return err
				}
			}

			buf := make([]byte, putChunkBytes)
			var offset uint64
			for {
				n, readErr := in.Read(buf)
				if n > 0 {
					if err := h.afs.FileWrite(id, offset, buf[:n], now); err != nil {
						return err
					}
					offset += uint64(n)
				}
				if readErr == io.EOF {
					break
				}
				if readErr != nil {
					return readErr
				}
			}

			if !quiet {
				fmt.Printf("wrote %d bytes to %s\n", offset, args[0])
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVar(&putMetaData, "meta", "", "file metadata, only applied on create")
	putCmd.Flags().StringVar(&putSrc, "src", "", "local file to read instead of stdin")
}
