package utils

import (
	"github.com/notargets/gocca"
	"github.com/pkg/errors"
)

// DefaultDeviceProps lists the OCCA backends tried in order when no
// explicit device properties are given
var DefaultDeviceProps = []string{
	`{"mode": "OpenMP"}`,
	`{"mode": "CUDA", "device_id": 0}`,
	`{"mode": "Serial"}`,
}

// NewDevice creates an OCCA device from the first property string that
// succeeds. With no arguments DefaultDeviceProps is used.
func NewDevice(props ...string) (*gocca.OCCADevice, error) {
	if len(props) == 0 {
		props = DefaultDeviceProps
	}
	var lastErr error
	for _, p := range props {
		device, err := gocca.NewDevice(p)
		if err == nil {
			Logger().WithField("mode", device.Mode()).Debug("created OCCA device")
			return device, nil
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "no OCCA device could be created")
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	device, err := NewDevice()
	if err != nil {
		// Should not reach here, Serial is always available
		panic("Failed to create any Device")
	}
	return device
}
