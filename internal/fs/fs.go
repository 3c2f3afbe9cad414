package fs

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"github.com/karrick/godirwalk"
)

// DirPermissions are the default permission bits applied to directories
// created on behalf of the linker and build cache.
const DirPermissions = os.ModeDir | 0775

// PathExists returns true if the given path exists, as a file or a directory.
func PathExists(filename string) bool {
	_, err := os.Lstat(filename)
	return err == nil
}

// FileExists returns true if the given path exists and is a regular file.
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && info.Mode().IsRegular()
}

// IsDirectory checks if a given path is a directory.
func IsDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsSymlink returns true if the given path exists and is a symlink.
func IsSymlink(filename string) bool {
	info, err := os.Lstat(filename)
	return err == nil && (info.Mode()&os.ModeSymlink) != 0
}

// EnsureDir ensures that the directory containing filename exists.
func EnsureDir(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		if FileExists(dir) {
			if err2 := os.Remove(dir); err2 == nil {
				return os.MkdirAll(dir, DirPermissions)
			}
		}
		return err
	}
	return nil
}

// Walk implements an equivalent to filepath.Walk, built on godirwalk for
// speed on large node_modules trees.
func Walk(rootPath string, callback func(name string, isDir bool) error) error {
	return WalkMode(rootPath, func(name string, isDir bool, _ os.FileMode) error {
		return callback(name, isDir)
	})
}

// WalkMode is like Walk but the callback also receives the entry's mode-type
// bits (the part of os.FileMode that determines symlink/dir/regular).
func WalkMode(rootPath string, callback func(name string, isDir bool, mode os.FileMode) error) error {
	return godirwalk.Walk(rootPath, &godirwalk.Options{
		Callback: func(name string, info *godirwalk.Dirent) error {
			isDir, err := info.IsDirOrSymlinkToDir()
			if err != nil {
				var pathErr *os.PathError
				if errors.As(err, &pathErr) {
					return godirwalk.SkipThis
				}
				return err
			}
			return callback(name, isDir, info.ModeType())
		},
		ErrorCallback: func(_ string, err error) godirwalk.ErrorAction {
			var pathErr *os.PathError
			if errors.As(err, &pathErr) {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
		Unsorted:            true,
		AllowNonDirectory:   true,
		FollowSymbolicLinks: false,
	})
}

// SameFile returns true if the two given paths refer to the same physical
// file on disk (same device + inode on POSIX). Used by the linker's
// idempotence check (spec §4.4).
func SameFile(a, b string) (bool, error) {
	if a == b {
		return true, nil
	}
	aInfo, err := os.Lstat(a)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	bInfo, err := os.Lstat(b)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(aInfo, bInfo), nil
}

// LinkCount returns the number of hard links pointing at path's inode.
// A content store blob with a count of 1 is linked from nowhere else on
// disk and is a candidate for pruning (spec §4.4 content store; POSIX
// only, matching the Windows-out-of-scope decisions already made for
// .bin shims and named pipes — see DESIGN.md).
func LinkCount(path string) (int, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 1, nil
	}
	return int(stat.Nlink), nil
}
