package gpucache

import "fmt"

// Opaque driver-object handles. The zero value of every handle is null.
type (
	// LayoutHandle identifies a set layout or pipeline layout.
	LayoutHandle uint64

	// RenderPassHandle identifies a render pass.
	RenderPassHandle uint64

	// FrameBufferHandle identifies a framebuffer.
	FrameBufferHandle uint64

	// PoolHandle identifies a descriptor pool.
	PoolHandle uint64

	// SetHandle identifies a descriptor set.
	SetHandle uint64

	// ImageViewHandle identifies a concrete image view bound to an attachment.
	ImageViewHandle uint64

	// ResourceHandle identifies a buffer, sampler, image view or acceleration
	// structure referenced by a descriptor binding.
	ResourceHandle uint64
)

// Size limits of the fixed-layout keys.
const (
	// MaxSetBindings is the number of binding slots in one set.
	MaxSetBindings = 16

	// MaxBindingSets is the number of sets in one pipeline layout.
	MaxBindingSets = 4

	// MaxColorAttachments is the number of color slots in a render pass.
	MaxColorAttachments = 8

	// UnboundedCount is the descriptor count at or above which a layout slot is
	// variable-length and partially bound.
	UnboundedCount = 1 << 12
)

// BindingType is the resource type of a binding slot.
type BindingType uint8

// Binding types.
const (
	BindingNone BindingType = iota
	BindingUniformBuffer
	BindingStorageBuffer
	BindingUniformBufferDynamic
	BindingStorageBufferDynamic
	BindingSampledImage
	BindingCombinedImageSampler
	BindingStorageImage
	BindingSampler
	BindingAccelerationStructure

	bindingTypeCount
)

// IsBuffer reports whether t binds a buffer range.
func (t BindingType) IsBuffer() bool {
	switch t {
	case BindingUniformBuffer, BindingStorageBuffer,
		BindingUniformBufferDynamic, BindingStorageBufferDynamic:
		return true
	}
	return false
}

// IsImage reports whether t binds an image view and/or sampler.
func (t BindingType) IsImage() bool {
	switch t {
	case BindingSampledImage, BindingCombinedImageSampler,
		BindingStorageImage, BindingSampler:
		return true
	}
	return false
}

// IsDynamic reports whether t takes a dynamic offset at bind time.
func (t BindingType) IsDynamic() bool {
	return t == BindingUniformBufferDynamic || t == BindingStorageBufferDynamic
}

// String returns the binding type name.
func (t BindingType) String() string {
	switch t {
	case BindingNone:
		return "None"
	case BindingUniformBuffer:
		return "UniformBuffer"
	case BindingStorageBuffer:
		return "StorageBuffer"
	case BindingUniformBufferDynamic:
		return "UniformBufferDynamic"
	case BindingStorageBufferDynamic:
		return "StorageBufferDynamic"
	case BindingSampledImage:
		return "SampledImage"
	case BindingCombinedImageSampler:
		return "CombinedImageSampler"
	case BindingStorageImage:
		return "StorageImage"
	case BindingSampler:
		return "Sampler"
	case BindingAccelerationStructure:
		return "AccelerationStructure"
	default:
		return fmt.Sprintf("BindingType(%d)", t)
	}
}

// StageFlags is a shader stage visibility mask.
type StageFlags uint32

// Shader stages.
const (
	StageVertex StageFlags = 1 << iota
	StageFragment
	StageCompute
	StageTask
	StageMesh
	StageRayGen

	StageAllGraphics = StageVertex | StageFragment | StageTask | StageMesh
)

// ImageLayout is the memory layout an attachment image is in.
type ImageLayout uint8

// Image layouts.
const (
	ImageLayoutUndefined ImageLayout = iota
	ImageLayoutGeneral
	ImageLayoutColorAttachment
	ImageLayoutDepthStencilAttachment
	ImageLayoutDepthStencilReadOnly
	ImageLayoutShaderReadOnly
	ImageLayoutTransferSrc
	ImageLayoutTransferDst
	ImageLayoutPresent
)

// String returns the layout name.
func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "Undefined"
	case ImageLayoutGeneral:
		return "General"
	case ImageLayoutColorAttachment:
		return "ColorAttachment"
	case ImageLayoutDepthStencilAttachment:
		return "DepthStencilAttachment"
	case ImageLayoutDepthStencilReadOnly:
		return "DepthStencilReadOnly"
	case ImageLayoutShaderReadOnly:
		return "ShaderReadOnly"
	case ImageLayoutTransferSrc:
		return "TransferSrc"
	case ImageLayoutTransferDst:
		return "TransferDst"
	case ImageLayoutPresent:
		return "Present"
	default:
		return fmt.Sprintf("ImageLayout(%d)", l)
	}
}

// ParseBindingType returns the binding type named s (as produced by String).
func ParseBindingType(s string) (BindingType, error) {
	for t := BindingNone; t < bindingTypeCount; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return BindingNone, fmt.Errorf("gpucache: unknown binding type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t BindingType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *BindingType) UnmarshalText(text []byte) error {
	v, err := ParseBindingType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseImageLayout returns the image layout named s (as produced by String).
func ParseImageLayout(s string) (ImageLayout, error) {
	for l := ImageLayoutUndefined; l <= ImageLayoutPresent; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return ImageLayoutUndefined, fmt.Errorf("gpucache: unknown image layout %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (l ImageLayout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *ImageLayout) UnmarshalText(text []byte) error {
	v, err := ParseImageLayout(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
