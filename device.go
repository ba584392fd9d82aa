package gpucache

import "github.com/gogpu/gputypes"

// Device is the driver surface the caches create and destroy objects on.
//
// Create methods return a non-null handle or an error. AllocateDescriptorSet
// reports a full pool with an error wrapping ErrPoolExhausted and a
// fragmented pool with ErrPoolFragmented; any other error is treated as
// fatal. Destroy and Free methods must accept handles only once.
//
// Implementations live in the backend packages.
type Device interface {
	CreateSetLayout(desc *SetLayoutDescriptor) (LayoutHandle, error)
	DestroySetLayout(layout LayoutHandle)

	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (LayoutHandle, error)
	DestroyPipelineLayout(layout LayoutHandle)

	CreateRenderPass(desc *RenderPassDescriptor) (RenderPassHandle, error)
	DestroyRenderPass(pass RenderPassHandle)

	CreateFrameBuffer(desc *FrameBufferDescriptor) (FrameBufferHandle, error)
	DestroyFrameBuffer(fb FrameBufferHandle)

	CreateDescriptorPool(desc *PoolDescriptor) (PoolHandle, error)
	DestroyDescriptorPool(pool PoolHandle)

	// AllocateDescriptorSet allocates one set of the given layout.
	// variableCount sizes the layout's variable-length binding, if any.
	AllocateDescriptorSet(pool PoolHandle, layout LayoutHandle, variableCount uint32) (SetHandle, error)

	// FreeDescriptorSet returns set to pool.
	FreeDescriptorSet(pool PoolHandle, set SetHandle)

	// UpdateDescriptorSets applies every write in update in one batch.
	UpdateDescriptorSets(update *DescriptorUpdate)
}

// LayoutBindingDescriptor describes one slot of a set layout.
type LayoutBindingDescriptor struct {
	Slot   uint32
	Type   BindingType
	Count  uint32
	Stages StageFlags

	// VariableCount marks the slot as variable-length; the count used for a
	// given set is passed to AllocateDescriptorSet.
	VariableCount bool

	// PartiallyBound allows elements of the slot to be left unwritten.
	PartiallyBound bool
}

// SetLayoutDescriptor describes a set layout.
type SetLayoutDescriptor struct {
	Bindings []LayoutBindingDescriptor
}

// PushConstantRange describes a push-constant block.
type PushConstantRange struct {
	Stages StageFlags
	Offset uint32
	Size   uint32
}

// PipelineLayoutDescriptor describes a pipeline layout.
type PipelineLayoutDescriptor struct {
	SetLayouts    []LayoutHandle
	PushConstants []PushConstantRange
}

// Sentinel attachment and subpass indices.
const (
	// AttachmentUnused marks a reference that points at no attachment.
	AttachmentUnused = ^uint32(0)

	// SubpassExternal names the work outside the render pass in a dependency.
	SubpassExternal = ^uint32(0)
)

// PipelineStage is a pipeline stage mask used by subpass dependencies.
type PipelineStage uint32

// Pipeline stages.
const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageBottomOfPipe
)

// AccessFlags is a memory access mask used by subpass dependencies.
type AccessFlags uint32

// Access kinds.
const (
	AccessColorAttachmentRead AccessFlags = 1 << iota
	AccessColorAttachmentWrite
	AccessDepthStencilAttachmentRead
	AccessDepthStencilAttachmentWrite
	AccessShaderRead
	AccessInputAttachmentRead
)

// AttachmentDescription describes one attachment of a render pass.
type AttachmentDescription struct {
	Format  gputypes.TextureFormat
	Samples uint32
	LoadOp  gputypes.LoadOp
	StoreOp gputypes.StoreOp

	InitialLayout ImageLayout
	SubpassLayout ImageLayout
	FinalLayout   ImageLayout
}

// AttachmentReference points a subpass slot at an attachment.
type AttachmentReference struct {
	Attachment uint32
	Layout     ImageLayout
}

// SubpassDependency is an execution and memory barrier between subpasses.
type SubpassDependency struct {
	SrcSubpass uint32
	DstSubpass uint32
	SrcStages  PipelineStage
	DstStages  PipelineStage
	SrcAccess  AccessFlags
	DstAccess  AccessFlags
	ByRegion   bool
}

// RenderPassDescriptor describes a single-subpass render pass.
//
// Attachments holds color descriptions, then resolve descriptions, then the
// depth description. ResolveRefs is either empty or parallel to ColorRefs.
type RenderPassDescriptor struct {
	Attachments  []AttachmentDescription
	ColorRefs    []AttachmentReference
	ResolveRefs  []AttachmentReference
	DepthRef     *AttachmentReference
	Dependencies []SubpassDependency
}

// FrameBufferDescriptor binds concrete image views to a render pass.
// Attachments are in the render pass attachment order.
type FrameBufferDescriptor struct {
	RenderPass  RenderPassHandle
	Attachments []ImageViewHandle
	Width       uint32
	Height      uint32
	Layers      uint32
}

// PoolSize is the descriptor capacity of one binding type in a pool.
type PoolSize struct {
	Type  BindingType `yaml:"type"`
	Count uint32      `yaml:"count"`
}

// PoolDescriptor describes a descriptor pool.
type PoolDescriptor struct {
	MaxSets uint32
	Sizes   []PoolSize
}

// BufferInfo is the payload of a buffer-like descriptor write.
type BufferInfo struct {
	Buffer ResourceHandle
	Offset uint64
	Range  uint64
}

// ImageInfo is the payload of an image-like descriptor write.
type ImageInfo struct {
	Sampler ResourceHandle
	View    ResourceHandle
	Layout  ImageLayout
}

// AccelerationInfo is the payload of an acceleration-structure write.
type AccelerationInfo struct {
	Structure ResourceHandle
}

// DescriptorWrite writes Count consecutive elements of one binding.
//
// First indexes the payload array matching Type in the enclosing
// DescriptorUpdate (Buffers, Images or Accelerations). Indices rather than
// slices keep writes valid while the payload arrays grow.
type DescriptorWrite struct {
	Set   SetHandle
	Slot  uint32
	Type  BindingType
	Count uint32
	First uint32
}

// DescriptorUpdate is a batch of descriptor writes with shared payloads.
type DescriptorUpdate struct {
	Writes        []DescriptorWrite
	Buffers       []BufferInfo
	Images        []ImageInfo
	Accelerations []AccelerationInfo
}

// BufferInfos returns the buffer payloads of w.
func (u *DescriptorUpdate) BufferInfos(w *DescriptorWrite) []BufferInfo {
	return u.Buffers[w.First : w.First+w.Count]
}

// ImageInfos returns the image payloads of w.
func (u *DescriptorUpdate) ImageInfos(w *DescriptorWrite) []ImageInfo {
	return u.Images[w.First : w.First+w.Count]
}

// AccelerationInfos returns the acceleration-structure payloads of w.
func (u *DescriptorUpdate) AccelerationInfos(w *DescriptorWrite) []AccelerationInfo {
	return u.Accelerations[w.First : w.First+w.Count]
}

// Reset empties u for reuse, keeping its capacity.
func (u *DescriptorUpdate) Reset() {
	u.Writes = u.Writes[:0]
	u.Buffers = u.Buffers[:0]
	u.Images = u.Images[:0]
	u.Accelerations = u.Accelerations[:0]
}
