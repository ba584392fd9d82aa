package backend

import (
	"errors"

	"github.com/gogpu/gpucache"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Backend name constants.
const (
	// BackendSoftware is the name of the CPU reference device.
	BackendSoftware = "software"
	// BackendNative is the name of the gogpu/wgpu HAL device.
	BackendNative = "native"
)

// Backend provides the gpucache.Device the caches run on.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "software", "native").
	Name() string

	// Init acquires the underlying device.
	// This should be called before Device.
	Init() error

	// Close releases the device.
	// The backend should not be used after Close is called.
	Close()

	// Device returns the device, or nil before Init.
	Device() gpucache.Device
}
