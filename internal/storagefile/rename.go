package storagefile

import (
	"fmt"
	"os"
)

// checkOldPathsAndRename implements the rename-on-open behavior: if the
// file exists under exactly one old name and not under the new one, it is
// renamed into place. Existing under more than one old name, or under both
// an old and the new name, is a fatal misconfiguration — it means a
// previous version upgrade was interrupted or run twice.
func checkOldPathsAndRename(fullPath string, oldFullPaths []string) error {
	var oldThatExists string
	found := 0
	for _, old := range oldFullPaths {
		if fileExists(old) {
			found++
			oldThatExists = old
		}
	}
	if found == 0 {
		return nil
	}
	if found > 1 {
		return fmt.Errorf("storagefile: a storage file exists under more than one old file name")
	}
	if fileExists(fullPath) {
		return fmt.Errorf("storagefile: a storage file exists under both an old and a new file name")
	}
	return os.Rename(oldThatExists, fullPath)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
