//go:build !windows

package shortcut

import "errors"

var errNoCOM = errors.New(".lnk shortcuts can only be created on windows")

func createLink(string, Shortcut) error {
	return errNoCOM
}
