//go:build !darwin && !linux

package main

import (
	"runtime"

	"github.com/wippyai/nativebind/config"
	"github.com/wippyai/nativebind/errors"
)

func openNative(string, *config.Config) (library, func(), error) {
	return nil, nil, errors.Unsupported(errors.PhaseLoad, "shared libraries on "+runtime.GOOS)
}
