//go:build !linux && !darwin

package device

import "fmt"

func resolve(path string) (Device, error) {
	return Device{}, fmt.Errorf("device classification not supported on this platform")
}
