// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package lock

func renameNoReplace(oldpath, newpath string) error {
	return renamePortable(oldpath, newpath)
}
