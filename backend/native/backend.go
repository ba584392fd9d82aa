package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache"
	"github.com/gogpu/gpucache/backend"
)

// Backend opens a Vulkan HAL device and serves it as a gpucache.Device.
type Backend struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	cache    *Device
}

// init registers the native backend on package import.
func init() {
	backend.Register(backend.BackendNative, func() backend.Backend {
		return &Backend{}
	})
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendNative
}

// Init opens the first discrete or integrated GPU, falling back to the
// first adapter.
func (b *Backend) Init() error {
	if b.cache != nil {
		return nil
	}
	api, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("native: vulkan backend not available: %w", backend.ErrBackendNotAvailable)
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("native: no GPU adapters found: %w", backend.ErrBackendNotAvailable)
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("native: open device: %w", err)
	}

	b.instance = instance
	b.device = openDev.Device
	b.queue = openDev.Queue
	b.cache = New(b.device, b.queue)
	slogger().Info("native: device opened", "adapter", selected.Info.Name)
	return nil
}

// Close releases every object and the device.
func (b *Backend) Close() {
	if b.cache != nil {
		b.cache.Close()
		b.cache = nil
	}
	if b.device != nil {
		b.device.Destroy()
		b.device = nil
		b.queue = nil
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
}

// Device returns the device, or nil before Init.
func (b *Backend) Device() gpucache.Device {
	if b.cache == nil {
		return nil
	}
	return b.cache
}

// NativeDevice returns the concrete device, or nil before Init.
func (b *Backend) NativeDevice() *Device {
	return b.cache
}
