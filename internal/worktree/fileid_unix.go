//go:build unix

package worktree

import (
	"io/fs"
	"syscall"
)

// fileIDFromInfo extracts the device/inode pair used to recognize a path
// surviving a rename. Returns the zero FileID when info's underlying Sys()
// isn't a *syscall.Stat_t. os.FileInfo always populates Sys() with the
// standard library's syscall type, not golang.org/x/sys/unix's, so this
// uses syscall; x/sys is not a dependency of this module (see DESIGN.md).
func fileIDFromInfo(info fs.FileInfo) FileID {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return FileID{}
	}
	return FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}
}
