// Package device resolves directories to their backing block device and
// classifies them so that I/O batching can be tuned per device class.
package device

import "fmt"

// Device describes the block device backing one or more roots.
type Device struct {
	ID         string // stable identifier, e.g. "8:0" on Linux
	Rotational bool
	Filesystem string
	QueueDepth int // max concurrent reads dispatched against this device
}

// Default queue depths per device class. Rotational media seek-thrash under
// concurrent reads; solid-state devices tolerate much deeper queues.
const (
	DefaultHDDQueueDepth = 2
	DefaultSSDQueueDepth = 8
)

// ResolutionError reports that a path's backing device could not be
// determined, e.g. a network filesystem with no stable identifier. It is
// non-fatal: callers fall back to Fallback() and continue.
type ResolutionError struct {
	Path string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve device for %s: %v", e.Path, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Fallback returns the conservative default used when resolution fails:
// treat the device as rotational with a minimal queue depth.
func Fallback() Device {
	return Device{
		ID:         "unknown",
		Rotational: true,
		Filesystem: "unknown",
		QueueDepth: DefaultHDDQueueDepth,
	}
}

// Classify resolves the device backing path and fills in its queue depth.
// On a ResolutionError the fallback device is returned along with the error
// so callers can log it and continue.
func Classify(path string) (Device, error) {
	dev, err := resolve(path)
	if err != nil {
		return Fallback(), &ResolutionError{Path: path, Err: err}
	}
	if dev.Rotational {
		dev.QueueDepth = DefaultHDDQueueDepth
	} else {
		dev.QueueDepth = DefaultSSDQueueDepth
	}
	return dev, nil
}
