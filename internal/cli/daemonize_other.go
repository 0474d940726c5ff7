//go:build windows

package cli

import "errors"

var errNoDetach = errors.New("--detach is not supported on this platform, run bandmand as a service instead")

func daemonize() error {
	return errNoDetach
}

func withoutDetach(args []string) []string {
	return args
}

func stopDetached() error {
	return errNoDetach
}

func detachedStatus() (int, error) {
	return 0, errNoDetach
}
