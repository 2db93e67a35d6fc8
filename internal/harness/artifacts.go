package harness

import (
	"os"
	"path/filepath"
	"strings"
)

// VerifyArtifacts checks that every listed path exists under workingDir and
// removes it, then removes workingDir itself. Files are unlinked and
// directories removed only when already empty, so entries must be listed
// children first.
//
// The check consumes the artifacts: a second call on the same directory
// reports the first entry as missing.
func VerifyArtifacts(workingDir string, files []string) *Discrepancy {
	if d := removeArtifacts(workingDir, files); d != nil {
		return d
	}
	if err := os.Remove(workingDir); err != nil {
		return discrepancy(KindArtifact, "working dir has unexpected files")
	}
	return nil
}

// removeArtifacts deletes the listed entries below root, leaving root
// itself in place.
func removeArtifacts(root string, files []string) *Discrepancy {
	for _, name := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if _, err := os.Lstat(path); err != nil {
			return discrepancy(KindArtifact, "%s is missing", name)
		}
		// A directory that still has content cannot be removed; whatever
		// is left in it was not predicted.
		if err := os.Remove(path); err != nil {
			return discrepancy(KindArtifact, "working dir has unexpected files")
		}
	}
	return nil
}

// checkLeafFiles requires every listed entry that is not the parent of
// another listed entry to be a regular file. Symbolic links do not count.
func checkLeafFiles(root string, files []string) *Discrepancy {
	for _, name := range files {
		if isParentOfAny(name, files) {
			continue
		}
		info, err := os.Lstat(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			return discrepancy(KindArtifact, "%s is missing", name)
		}
		if !info.Mode().IsRegular() {
			return discrepancy(KindArtifact, "%s is not a regular file", name)
		}
	}
	return nil
}

func isParentOfAny(dir string, files []string) bool {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	for _, f := range files {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}
