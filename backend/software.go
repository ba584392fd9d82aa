package backend

import (
	"github.com/gogpu/gpucache"
	"github.com/gogpu/gpucache/backend/software"
)

// SoftwareBackend serves the CPU reference device.
type SoftwareBackend struct {
	device *software.Device
}

// init registers the software backend on package import.
func init() {
	Register(BackendSoftware, func() Backend {
		return &SoftwareBackend{}
	})
}

// NewSoftwareBackend creates a new software backend.
func NewSoftwareBackend() *SoftwareBackend {
	return &SoftwareBackend{}
}

// Name returns the backend identifier.
func (b *SoftwareBackend) Name() string {
	return BackendSoftware
}

// Init creates the device. Calling Init again keeps the existing device.
func (b *SoftwareBackend) Init() error {
	if b.device == nil {
		b.device = software.New()
	}
	return nil
}

// Close drops the device.
func (b *SoftwareBackend) Close() {
	b.device = nil
}

// Device returns the device, or nil before Init.
func (b *SoftwareBackend) Device() gpucache.Device {
	if b.device == nil {
		return nil
	}
	return b.device
}

// SoftwareDevice returns the concrete device for accounting queries.
func (b *SoftwareBackend) SoftwareDevice() *software.Device {
	return b.device
}
