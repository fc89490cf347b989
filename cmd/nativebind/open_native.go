//go:build darwin || linux

package main

import (
	"github.com/wippyai/nativebind/config"
	"github.com/wippyai/nativebind/native"
)

func openNative(path string, cfg *config.Config) (library, func(), error) {
	lib, err := native.Open(path, cfg)
	if err != nil {
		return nil, nil, err
	}
	return lib, func() { _ = lib.Close() }, nil
}
