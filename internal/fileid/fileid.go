// Package fileid derives stable content ids for imported files.
package fileid

import (
	"path/filepath"

	"github.com/google/uuid"
)

const prefix = "file-"

// ContentID returns a name-based (v5) UUID for path, prefixed with "file-".
// Equivalent spellings of the same path yield the same id, so re-importing a
// file updates its item and removing the file can delete it by path alone.
func ContentID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return prefix + uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(filepath.Clean(path)))).String()
}
