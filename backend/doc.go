// Package backend provides a pluggable device backend abstraction.
//
// The caches in package gpucache drive any gpucache.Device. This package
// names the available implementations and picks one at runtime.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected at runtime.
// The software backend is automatically registered on import:
//
//	import _ "github.com/gogpu/gpucache/backend"
//
// The native backend registers itself when its package is imported:
//
//	import _ "github.com/gogpu/gpucache/backend/native"
//
// # Backend Selection
//
// Use InitDefault() to initialize the best backend that can open a device,
// or Get() to request a specific backend by name:
//
//	b, err := backend.InitDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	caches := gpucache.NewCaches(b.Device())
//
// # Available Backends
//
// - "software": CPU reference device (always available)
// - "native": gogpu/wgpu HAL device (Vulkan)
package backend
