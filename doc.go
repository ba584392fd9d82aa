// Package gpucache deduplicates and lifetime-manages GPU driver objects.
//
// # Overview
//
// A real-time renderer resolves the same binding layouts, render targets and
// resource bindings every frame. gpucache maps each of them, by content, to a
// single driver object and destroys that object only once it has gone unused
// and the GPU can no longer reference it.
//
// Three groups of objects are cached:
//   - Layouts: set layouts and pipeline layouts (LayoutCache). Never pruned.
//   - Render targets: render passes and framebuffers (RenderPassCache,
//     FrameBufferCache). Pruned by age and reference count.
//   - Descriptor sets (DescriptorCache), allocated from a growable pool.
//     Pruned by age and GPU completion.
//
// # Quick Start
//
//	import "github.com/gogpu/gpucache"
//
//	caches := gpucache.NewCaches(device)
//	defer caches.Destroy()
//
//	var lk gpucache.SetLayoutKey
//	lk.Stages = gpucache.StageVertex | gpucache.StageFragment
//	lk.Bind(0, gpucache.BindingUniformBuffer, 1)
//	layout, err := caches.GetSetLayout(lk)
//
//	var sk gpucache.DescriptorSetKey
//	sk.Add(gpucache.BufferDescriptor(0, gpucache.BindingUniformBuffer, ubo, 0, 256))
//	set, err := caches.GetDescriptorSet(layout, sk, frameFence)
//
//	// once per frame, after submission
//	caches.Prune()
//
// # Keys
//
// Keys are fixed-size comparable structs. Two keys name the same object
// exactly when they are ==, so every unused slot must be left at its zero
// value. Hashing uses xxhash over every declared field; hash collisions are
// resolved by comparison and never share an object.
//
// # Pruning
//
// Each cache keeps a logical tick advanced by its Prune. A lookup stamps the
// entry with the current tick, and the entry becomes eligible for eviction
// once more than the prune delay (WithPruneDelay) ticks have passed.
// Descriptor sets and retired pools additionally wait for their
// CompletionSignal. Signals are polled and never awaited.
//
// # Devices
//
// The caches drive a Device. Package backend/software provides a reference
// device with real pool accounting; backend/native runs on a
// github.com/gogpu/wgpu/hal device.
//
// # Concurrency
//
// LayoutCache, RenderPassCache, FrameBufferCache and DescriptorCache have no
// internal locking. Caches wraps all of them behind one mutex.
package gpucache

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
