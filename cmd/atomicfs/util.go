package atomicfs

import (
	"fmt"
	"path"
	"time"

	"golang.org/x/text/language"

	"github.com/deploymenttheory/atomicfs/internal/afs"
	"github.com/deploymenttheory/atomicfs/internal/nameorder"
)

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func resolveComparer(mode string) nameorder.Comparer {
	switch mode {
	case "insensitive":
		return nameorder.CaseInsensitive(language.English)
	case "collate":
		return nameorder.Collation(language.English)
	default:
		return nameorder.CaseSensitive()
	}
}

// splitParentName splits an absolute path into its parent's ObjId and
// final path component, resolving the parent via CrackPath.
func splitParentName(a *afs.Afs, absPath string) (afs.ObjId, string, error) {
	if absPath == "" || absPath[0] != '/' || absPath == "/" {
		return afs.ObjId{}, "", fmt.Errorf("path must be an absolute non-root path")
	}
	dir, name := path.Split(absPath)
	dir = path.Clean(dir)
	if dir == "/" || dir == "." {
		return a.Root(), name, nil
	}
	entries, err := a.CrackPath(dir)
	if err != nil {
		return afs.ObjId{}, "", err
	}
	return entries[len(entries)-1].Id, name, nil
}

// resolvePath resolves an absolute path to its ObjId, Root for "/".
func resolvePath(a *afs.Afs, absPath string) (afs.ObjId, error) {
	if absPath == "/" {
		return a.Root(), nil
	}
	entries, err := a.CrackPath(absPath)
	if err != nil {
		return afs.ObjId{}, err
	}
	return entries[len(entries)-1].Id, nil
}
