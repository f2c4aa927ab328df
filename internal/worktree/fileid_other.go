//go:build !unix

package worktree

import "io/fs"

// fileIDFromInfo has no portable implementation outside unix; callers fall
// back to the Removed+Created change shape the spec tolerates for
// platforms where file_id isn't stable.
func fileIDFromInfo(info fs.FileInfo) FileID {
	return FileID{}
}
