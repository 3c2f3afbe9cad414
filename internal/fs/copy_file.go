// Adapted from https://github.com/thought-machine/please
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package fs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/howth-dev/howth/internal/util"
)

// CopyFile copies a file from 'from' to 'to', creating any missing parent
// directories.
func CopyFile(from, to string, mode os.FileMode) error {
	fromFile, err := os.Open(from)
	if err != nil {
		return err
	}
	defer util.CloseAndIgnoreError(fromFile)

	if dir := filepath.Dir(to); dir != "" {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return err
		}
	}
	if mode == 0 {
		mode = 0664
	}
	toFile, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(toFile, fromFile); err != nil {
		toFile.Close()
		os.Remove(to)
		return err
	}
	return toFile.Close()
}

// LinkOrCopyFile hardlinks 'from' to 'to', falling back to a copy when the
// link is refused (cross-device, or a filesystem that doesn't support hard
// links). This is the materialization primitive the package linker (spec
// §4.4) uses to place content-addressed cache contents into node_modules.
func LinkOrCopyFile(from, to string, mode os.FileMode) error {
	if dir := filepath.Dir(to); dir != "" {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return err
		}
	}
	if err := os.Remove(to); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Link(from, to); err == nil {
		return nil
	}
	return CopyFile(from, to, mode)
}

// ReplaceSymlink atomically replaces (or creates) a symlink at linkPath
// pointing at target.
func ReplaceSymlink(target, linkPath string) error {
	if dir := filepath.Dir(linkPath); dir != "" {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return err
		}
	}
	if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Symlink(target, linkPath)
}

// WriteFileAtomic writes contents to path by writing to a temp file in the
// same directory and renaming over the destination, so readers never see a
// partial write (spec §5 "Atomic writes").
func WriteFileAtomic(path string, contents []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(contents); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
