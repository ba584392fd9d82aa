package gpucache

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache/internal/keyhash"
)

// Cache keys are fixed-size value types. Every field takes part in equality
// (==) and hashing; unused slots must be left as the zero value so that two
// semantically equal keys are also field-for-field equal.

// LayoutBinding is the shape of one set layout slot. A zero Count marks the
// slot unused.
type LayoutBinding struct {
	Type  BindingType
	Count uint32
}

// SetLayoutKey identifies a set layout. Bindings is indexed by slot.
type SetLayoutKey struct {
	Bindings [MaxSetBindings]LayoutBinding
	Stages   StageFlags
}

// Bind sets slot to count descriptors of type t.
func (k *SetLayoutKey) Bind(slot uint32, t BindingType, count uint32) *SetLayoutKey {
	k.Bindings[slot] = LayoutBinding{Type: t, Count: count}
	return k
}

// Empty reports whether no slot is used.
func (k *SetLayoutKey) Empty() bool {
	for i := range k.Bindings {
		if k.Bindings[i].Count != 0 {
			return false
		}
	}
	return true
}

func (k *SetLayoutKey) write(h *keyhash.Hasher) {
	for i := range k.Bindings {
		h.Uint8(uint8(k.Bindings[i].Type))
		h.Uint32(k.Bindings[i].Count)
	}
	h.Uint32(uint32(k.Stages))
}

// Hash returns the content hash of k.
func (k SetLayoutKey) Hash() uint64 {
	return keyhash.Sum(k.write)
}

// PipelineLayoutKey identifies a pipeline layout by the set layouts it is
// built from and its push-constant block.
type PipelineLayoutKey struct {
	Sets          [MaxBindingSets]SetLayoutKey
	SetCount      uint8
	PushConstants PushConstantRange
}

// Hash returns the content hash of k.
func (k PipelineLayoutKey) Hash() uint64 {
	return keyhash.Sum(func(h *keyhash.Hasher) {
		for i := range k.Sets {
			k.Sets[i].write(h)
		}
		h.Uint8(k.SetCount)
		h.Uint32(uint32(k.PushConstants.Stages))
		h.Uint32(k.PushConstants.Offset)
		h.Uint32(k.PushConstants.Size)
	})
}

// AttachmentKey describes one render pass attachment. An attachment whose
// format is gputypes.TextureFormatUndefined is absent.
type AttachmentKey struct {
	Format  gputypes.TextureFormat
	Samples uint8
	Load    gputypes.LoadOp
	Store   gputypes.StoreOp
	Layout  ImageLayout

	// Resolve requests a single-sample resolve attachment for this color slot.
	Resolve bool
}

// Used reports whether the attachment is present.
func (a AttachmentKey) Used() bool {
	return a.Format != gputypes.TextureFormatUndefined
}

func (a *AttachmentKey) write(h *keyhash.Hasher) {
	h.Uint32(uint32(a.Format))
	h.Uint8(a.Samples)
	h.Uint32(uint32(a.Load))
	h.Uint32(uint32(a.Store))
	h.Uint8(uint8(a.Layout))
	h.Bool(a.Resolve)
}

// RenderPassKey identifies a render pass.
type RenderPassKey struct {
	Colors  [MaxColorAttachments]AttachmentKey
	Depth   AttachmentKey
	Samples uint8

	// Dynamic marks non-swapchain targets that may be sampled by later
	// draws in the same pass.
	Dynamic bool
}

// HasDepth reports whether the key declares a depth attachment.
func (k *RenderPassKey) HasDepth() bool {
	return k.Depth.Used()
}

// Hash returns the content hash of k.
func (k RenderPassKey) Hash() uint64 {
	return keyhash.Sum(func(h *keyhash.Hasher) {
		for i := range k.Colors {
			k.Colors[i].write(h)
		}
		k.Depth.write(h)
		h.Uint8(k.Samples)
		h.Bool(k.Dynamic)
	})
}

// FrameBufferKey identifies a framebuffer: a render pass bound to concrete
// image views. Null views mark unused slots.
type FrameBufferKey struct {
	RenderPass RenderPassHandle
	Colors     [MaxColorAttachments]ImageViewHandle
	Resolves   [MaxColorAttachments]ImageViewHandle
	Depth      ImageViewHandle
	Width      uint32
	Height     uint32
	Layers     uint32
}

// Hash returns the content hash of k.
func (k FrameBufferKey) Hash() uint64 {
	return keyhash.Sum(func(h *keyhash.Hasher) {
		h.Uint64(uint64(k.RenderPass))
		for _, v := range k.Colors {
			h.Uint64(uint64(v))
		}
		for _, v := range k.Resolves {
			h.Uint64(uint64(v))
		}
		h.Uint64(uint64(k.Depth))
		h.Uint32(k.Width)
		h.Uint32(k.Height)
		h.Uint32(k.Layers)
	})
}

// BufferBinding is the payload of a buffer-like binding.
type BufferBinding struct {
	Buffer ResourceHandle
	Offset uint64
	Range  uint64
}

// ImageBinding is the payload of an image-like binding.
type ImageBinding struct {
	Sampler ResourceHandle
	View    ResourceHandle
	Layout  ImageLayout
}

// ArrayHandle identifies an interned resource array (see
// DescriptorCache.InternArray). The zero value means "no array".
type ArrayHandle uint64

// DescriptorBinding binds resources to one slot. Type selects which payload
// field is meaningful: Buffer for buffer-like types, Image for image-like
// types, Acceleration for acceleration structures. When Array is non-null
// the payload comes from the interned array instead and Count is its length.
//
// Build bindings with BufferDescriptor, ImageDescriptor,
// AccelerationDescriptor or ArrayDescriptor so unused payloads stay zero.
type DescriptorBinding struct {
	Slot         uint32
	Type         BindingType
	Count        uint32
	Buffer       BufferBinding
	Image        ImageBinding
	Acceleration ResourceHandle
	Array        ArrayHandle
}

// BufferDescriptor returns a single buffer binding.
func BufferDescriptor(slot uint32, t BindingType, buf ResourceHandle, offset, size uint64) DescriptorBinding {
	return DescriptorBinding{
		Slot:   slot,
		Type:   t,
		Count:  1,
		Buffer: BufferBinding{Buffer: buf, Offset: offset, Range: size},
	}
}

// ImageDescriptor returns a single image/sampler binding.
func ImageDescriptor(slot uint32, t BindingType, sampler, view ResourceHandle, layout ImageLayout) DescriptorBinding {
	return DescriptorBinding{
		Slot:  slot,
		Type:  t,
		Count: 1,
		Image: ImageBinding{Sampler: sampler, View: view, Layout: layout},
	}
}

// AccelerationDescriptor returns a single acceleration-structure binding.
func AccelerationDescriptor(slot uint32, as ResourceHandle) DescriptorBinding {
	return DescriptorBinding{
		Slot:         slot,
		Type:         BindingAccelerationStructure,
		Count:        1,
		Acceleration: as,
	}
}

// ArrayDescriptor returns a binding backed by an interned array of count
// elements.
func ArrayDescriptor(slot uint32, t BindingType, arr ArrayHandle, count uint32) DescriptorBinding {
	return DescriptorBinding{
		Slot:  slot,
		Type:  t,
		Count: count,
		Array: arr,
	}
}

// IsArray reports whether b is backed by an interned array.
func (b *DescriptorBinding) IsArray() bool {
	return b.Array != 0
}

// DescriptorSetKey lists the bindings of a descriptor set. The list ends at
// the first binding with a zero Count.
type DescriptorSetKey struct {
	Bindings [MaxSetBindings]DescriptorBinding
}

// Len returns the number of bindings before the terminator.
func (k *DescriptorSetKey) Len() int {
	for i := range k.Bindings {
		if k.Bindings[i].Count == 0 {
			return i
		}
	}
	return len(k.Bindings)
}

// Add appends b and reports whether it fit. Bindings with a zero Count are
// rejected because they would terminate the list.
func (k *DescriptorSetKey) Add(b DescriptorBinding) bool {
	if b.Count == 0 {
		return false
	}
	n := k.Len()
	if n == len(k.Bindings) {
		return false
	}
	k.Bindings[n] = b
	return true
}

// Active returns the bindings before the terminator.
func (k *DescriptorSetKey) Active() []DescriptorBinding {
	return k.Bindings[:k.Len()]
}

// VariableCount returns the total element count of array bindings.
func (k *DescriptorSetKey) VariableCount() uint32 {
	var n uint32
	for _, b := range k.Active() {
		if b.IsArray() {
			n += b.Count
		}
	}
	return n
}

func (k *DescriptorSetKey) write(h *keyhash.Hasher) {
	for i := range k.Bindings {
		b := &k.Bindings[i]
		h.Uint32(b.Slot)
		h.Uint8(uint8(b.Type))
		h.Uint32(b.Count)
		h.Uint64(uint64(b.Buffer.Buffer))
		h.Uint64(b.Buffer.Offset)
		h.Uint64(b.Buffer.Range)
		h.Uint64(uint64(b.Image.Sampler))
		h.Uint64(uint64(b.Image.View))
		h.Uint8(uint8(b.Image.Layout))
		h.Uint64(uint64(b.Acceleration))
		h.Uint64(uint64(b.Array))
	}
}

// Hash returns the content hash of k.
func (k DescriptorSetKey) Hash() uint64 {
	return keyhash.Sum(k.write)
}

// setKey is the identity of a cached descriptor set: the same bindings under
// two layouts are two different sets.
type setKey struct {
	Layout LayoutHandle
	Set    DescriptorSetKey
}

func (k setKey) Hash() uint64 {
	return keyhash.Sum(func(h *keyhash.Hasher) {
		h.Uint64(uint64(k.Layout))
		k.Set.write(h)
	})
}
