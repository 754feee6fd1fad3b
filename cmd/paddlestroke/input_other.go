//go:build !linux

package main

import (
	"errors"
	"os"
)

func startInputReader(files []*os.File, events chan<- inputEvent, readErr chan<- error) (func(), error) {
	return nil, errors.New("key input requires linux evdev")
}
