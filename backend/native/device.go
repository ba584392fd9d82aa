// Package native implements gpucache.Device on a gogpu/wgpu HAL device.
//
// The HAL follows WebGPU, which has bind groups but neither descriptor pools
// nor render pass and framebuffer objects. The device maps the cache
// vocabulary onto it as follows:
//   - set layouts and pipeline layouts are hal.BindGroupLayout and
//     hal.PipelineLayout objects
//   - descriptor pools are accounting records with the requested capacity;
//     a descriptor set becomes a hal.BindGroup once every slot of its
//     layout has been written
//   - render passes and framebuffers are recorded descriptions;
//     BeginDescriptor turns a framebuffer into the hal.RenderPassDescriptor
//     that begins it
//
// Resources referenced by descriptor writes and framebuffers are registered
// first (RegisterBuffer, RegisterTextureView, RegisterSampler) and named by
// the returned handle.
//
// Binding arrays, combined image samplers, storage images and acceleration
// structures have no HAL equivalent here and are rejected at layout creation
// with ErrUnsupported.
package native

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache"
)

// ErrUnsupported is returned for layouts the HAL cannot express.
var ErrUnsupported = errors.New("native: unsupported binding")

func slogger() *slog.Logger { return gpucache.Logger() }

type setLayout struct {
	layout   hal.BindGroupLayout
	bindings []gpucache.LayoutBindingDescriptor
}

type pool struct {
	maxSets  uint32
	capacity map[gpucache.BindingType]uint32
	used     map[gpucache.BindingType]uint32
	sets     map[gpucache.SetHandle]struct{}
}

type set struct {
	pool    gpucache.PoolHandle
	layout  gpucache.LayoutHandle
	entries map[uint32]gputypes.BindGroupEntry
	group   hal.BindGroup
}

// Device is a gpucache.Device on a hal.Device. It is safe for concurrent use.
type Device struct {
	mu     sync.Mutex
	device hal.Device
	queue  hal.Queue
	next   uint64

	setLayouts      map[gpucache.LayoutHandle]*setLayout
	pipelineLayouts map[gpucache.LayoutHandle]hal.PipelineLayout
	renderPasses    map[gpucache.RenderPassHandle]*gpucache.RenderPassDescriptor
	frameBuffers    map[gpucache.FrameBufferHandle]*gpucache.FrameBufferDescriptor
	pools           map[gpucache.PoolHandle]*pool
	sets            map[gpucache.SetHandle]*set

	buffers  map[gpucache.ResourceHandle]hal.Buffer
	views    map[gpucache.ResourceHandle]hal.TextureView
	samplers map[gpucache.ResourceHandle]hal.Sampler
}

var _ gpucache.Device = (*Device)(nil)

// New wraps device and queue. The caller keeps ownership of both.
func New(device hal.Device, queue hal.Queue) *Device {
	return &Device{
		device:          device,
		queue:           queue,
		setLayouts:      make(map[gpucache.LayoutHandle]*setLayout),
		pipelineLayouts: make(map[gpucache.LayoutHandle]hal.PipelineLayout),
		renderPasses:    make(map[gpucache.RenderPassHandle]*gpucache.RenderPassDescriptor),
		frameBuffers:    make(map[gpucache.FrameBufferHandle]*gpucache.FrameBufferDescriptor),
		pools:           make(map[gpucache.PoolHandle]*pool),
		sets:            make(map[gpucache.SetHandle]*set),
		buffers:         make(map[gpucache.ResourceHandle]hal.Buffer),
		views:           make(map[gpucache.ResourceHandle]hal.TextureView),
		samplers:        make(map[gpucache.ResourceHandle]hal.Sampler),
	}
}

// NewFromProvider wraps the HAL device of a shared gpucontext provider.
// The provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("native: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("native: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("native: provider HalQueue is not hal.Queue")
	}
	return New(device, queue), nil
}

func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

// HAL returns the wrapped device.
func (d *Device) HAL() hal.Device {
	return d.device
}

// CreateSetLayout implements gpucache.Device.
func (d *Device) CreateSetLayout(desc *gpucache.SetLayoutDescriptor) (gpucache.LayoutHandle, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Bindings))
	for _, b := range desc.Bindings {
		e, err := layoutEntry(&b)
		if err != nil {
			return 0, err
		}
		entries = append(entries, e)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	bgl, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "gpucache_set_layout",
		Entries: entries,
	})
	if err != nil {
		return 0, fmt.Errorf("native: create bind group layout: %w", err)
	}
	h := gpucache.LayoutHandle(d.handle())
	d.setLayouts[h] = &setLayout{layout: bgl, bindings: slices.Clone(desc.Bindings)}
	return h, nil
}

func layoutEntry(b *gpucache.LayoutBindingDescriptor) (gputypes.BindGroupLayoutEntry, error) {
	e := gputypes.BindGroupLayoutEntry{Binding: b.Slot}
	if b.Count != 1 || b.VariableCount {
		return e, fmt.Errorf("%w: slot %d is an array of %d", ErrUnsupported, b.Slot, b.Count)
	}
	if b.Stages&gpucache.StageVertex != 0 {
		e.Visibility |= gputypes.ShaderStageVertex
	}
	if b.Stages&gpucache.StageFragment != 0 {
		e.Visibility |= gputypes.ShaderStageFragment
	}
	if b.Stages&gpucache.StageCompute != 0 {
		e.Visibility |= gputypes.ShaderStageCompute
	}

	switch b.Type {
	case gpucache.BindingUniformBuffer, gpucache.BindingUniformBufferDynamic:
		e.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeUniform,
			HasDynamicOffset: b.Type.IsDynamic(),
		}
	case gpucache.BindingStorageBuffer, gpucache.BindingStorageBufferDynamic:
		e.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeStorage,
			HasDynamicOffset: b.Type.IsDynamic(),
		}
	case gpucache.BindingSampledImage:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucache.BindingSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{
			Type: gputypes.SamplerBindingTypeFiltering,
		}
	default:
		return e, fmt.Errorf("%w: slot %d has type %s", ErrUnsupported, b.Slot, b.Type)
	}
	return e, nil
}

// DestroySetLayout implements gpucache.Device.
func (d *Device) DestroySetLayout(h gpucache.LayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sl, ok := d.setLayouts[h]
	if !ok {
		slogger().Warn("native: destroy of unknown set layout", "handle", uint64(h))
		return
	}
	d.device.DestroyBindGroupLayout(sl.layout)
	delete(d.setLayouts, h)
}

// CreatePipelineLayout implements gpucache.Device. Push constants have no
// WebGPU equivalent and are rejected.
func (d *Device) CreatePipelineLayout(desc *gpucache.PipelineLayoutDescriptor) (gpucache.LayoutHandle, error) {
	if len(desc.PushConstants) > 0 {
		return 0, fmt.Errorf("%w: push constants", ErrUnsupported)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	groups := make([]hal.BindGroupLayout, len(desc.SetLayouts))
	for i, h := range desc.SetLayouts {
		sl, ok := d.setLayouts[h]
		if !ok {
			return 0, fmt.Errorf("native: pipeline layout set %d: unknown set layout %d", i, h)
		}
		groups[i] = sl.layout
	}
	pl, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "gpucache_pipeline_layout",
		BindGroupLayouts: groups,
	})
	if err != nil {
		return 0, fmt.Errorf("native: create pipeline layout: %w", err)
	}
	h := gpucache.LayoutHandle(d.handle())
	d.pipelineLayouts[h] = pl
	return h, nil
}

// DestroyPipelineLayout implements gpucache.Device.
func (d *Device) DestroyPipelineLayout(h gpucache.LayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pl, ok := d.pipelineLayouts[h]
	if !ok {
		slogger().Warn("native: destroy of unknown pipeline layout", "handle", uint64(h))
		return
	}
	d.device.DestroyPipelineLayout(pl)
	delete(d.pipelineLayouts, h)
}

// CreateDescriptorPool implements gpucache.Device.
func (d *Device) CreateDescriptorPool(desc *gpucache.PoolDescriptor) (gpucache.PoolHandle, error) {
	if desc.MaxSets == 0 {
		return 0, fmt.Errorf("native: descriptor pool with zero max sets")
	}
	p := &pool{
		maxSets:  desc.MaxSets,
		capacity: make(map[gpucache.BindingType]uint32, len(desc.Sizes)),
		used:     make(map[gpucache.BindingType]uint32, len(desc.Sizes)),
		sets:     make(map[gpucache.SetHandle]struct{}),
	}
	for _, s := range desc.Sizes {
		p.capacity[s.Type] += s.Count
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpucache.PoolHandle(d.handle())
	d.pools[h] = p
	return h, nil
}

// DestroyDescriptorPool implements gpucache.Device. Bind groups of the
// pool's sets are destroyed with it.
func (d *Device) DestroyDescriptorPool(h gpucache.PoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[h]
	if !ok {
		slogger().Warn("native: destroy of unknown descriptor pool", "handle", uint64(h))
		return
	}
	for sh := range p.sets {
		d.dropSet(sh)
	}
	delete(d.pools, h)
}

// AllocateDescriptorSet implements gpucache.Device. It reports
// gpucache.ErrPoolExhausted when the pool's set or per-type capacity is
// used up.
func (d *Device) AllocateDescriptorSet(ph gpucache.PoolHandle, lh gpucache.LayoutHandle, _ uint32) (gpucache.SetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pools[ph]
	if !ok {
		return 0, fmt.Errorf("native: allocate from unknown pool %d", ph)
	}
	sl, ok := d.setLayouts[lh]
	if !ok {
		return 0, fmt.Errorf("native: allocate with unknown set layout %d", lh)
	}
	if uint32(len(p.sets)) >= p.maxSets { //nolint:gosec // G115: set count bounded by maxSets
		return 0, gpucache.ErrPoolExhausted
	}
	for _, b := range sl.bindings {
		if p.used[b.Type]+b.Count > p.capacity[b.Type] {
			return 0, gpucache.ErrPoolExhausted
		}
	}
	for _, b := range sl.bindings {
		p.used[b.Type] += b.Count
	}

	h := gpucache.SetHandle(d.handle())
	p.sets[h] = struct{}{}
	d.sets[h] = &set{pool: ph, layout: lh, entries: make(map[uint32]gputypes.BindGroupEntry)}
	return h, nil
}

// FreeDescriptorSet implements gpucache.Device.
func (d *Device) FreeDescriptorSet(ph gpucache.PoolHandle, sh gpucache.SetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[sh]
	if !ok || s.pool != ph {
		slogger().Warn("native: free of unknown descriptor set", "set", uint64(sh), "pool", uint64(ph))
		return
	}
	d.dropSet(sh)
}

// dropSet destroys the bind group of set sh and returns its capacity.
func (d *Device) dropSet(sh gpucache.SetHandle) {
	s := d.sets[sh]
	if s.group != nil {
		d.device.DestroyBindGroup(s.group)
	}
	if p := d.pools[s.pool]; p != nil {
		if sl := d.setLayouts[s.layout]; sl != nil {
			for _, b := range sl.bindings {
				p.used[b.Type] -= min(b.Count, p.used[b.Type])
			}
		}
		delete(p.sets, sh)
	}
	delete(d.sets, sh)
}

// UpdateDescriptorSets implements gpucache.Device. A set's bind group is
// (re)created once all slots of its layout have been written.
func (d *Device) UpdateDescriptorSets(u *gpucache.DescriptorUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var touched []gpucache.SetHandle
	for i := range u.Writes {
		w := &u.Writes[i]
		s, ok := d.sets[w.Set]
		if !ok {
			slogger().Warn("native: write to unknown descriptor set", "set", uint64(w.Set))
			continue
		}
		entry, err := d.bindGroupEntry(u, w)
		if err != nil {
			slogger().Error("native: descriptor write rejected", "set", uint64(w.Set), "slot", w.Slot, "error", err)
			continue
		}
		s.entries[w.Slot] = entry
		if !slices.Contains(touched, w.Set) {
			touched = append(touched, w.Set)
		}
	}
	for _, sh := range touched {
		d.buildGroup(sh)
	}
}

func (d *Device) bindGroupEntry(u *gpucache.DescriptorUpdate, w *gpucache.DescriptorWrite) (gputypes.BindGroupEntry, error) {
	e := gputypes.BindGroupEntry{Binding: w.Slot}
	if w.Count != 1 {
		return e, fmt.Errorf("%w: write of %d elements", ErrUnsupported, w.Count)
	}
	switch {
	case w.Type.IsBuffer():
		info := u.BufferInfos(w)[0]
		buf, ok := d.buffers[info.Buffer]
		if !ok {
			return e, fmt.Errorf("native: unregistered buffer %d", info.Buffer)
		}
		e.Resource = gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: info.Offset, Size: info.Range}
	case w.Type == gpucache.BindingSampler:
		info := u.ImageInfos(w)[0]
		smp, ok := d.samplers[info.Sampler]
		if !ok {
			return e, fmt.Errorf("native: unregistered sampler %d", info.Sampler)
		}
		e.Resource = gputypes.SamplerBinding{Sampler: smp.NativeHandle()}
	case w.Type == gpucache.BindingSampledImage:
		info := u.ImageInfos(w)[0]
		view, ok := d.views[info.View]
		if !ok {
			return e, fmt.Errorf("native: unregistered texture view %d", info.View)
		}
		e.Resource = gputypes.TextureViewBinding{TextureView: view.NativeHandle()}
	default:
		return e, fmt.Errorf("%w: write of type %s", ErrUnsupported, w.Type)
	}
	return e, nil
}

// buildGroup creates the bind group of set sh if every layout slot is
// written, replacing any previous group.
func (d *Device) buildGroup(sh gpucache.SetHandle) {
	s := d.sets[sh]
	sl := d.setLayouts[s.layout]
	if sl == nil || len(s.entries) < len(sl.bindings) {
		return
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b gputypes.BindGroupEntry) int {
		return cmp.Compare(a.Binding, b.Binding)
	})

	group, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "gpucache_descriptor_set",
		Layout:  sl.layout,
		Entries: entries,
	})
	if err != nil {
		slogger().Error("native: create bind group failed", "set", uint64(sh), "error", err)
		return
	}
	if s.group != nil {
		d.device.DestroyBindGroup(s.group)
	}
	s.group = group
}

// BindGroup returns the bind group of set h, or nil if the set is unknown
// or not yet fully written.
func (d *Device) BindGroup(h gpucache.SetHandle) hal.BindGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sets[h]; ok {
		return s.group
	}
	return nil
}

// PipelineLayout returns the HAL pipeline layout of h, or nil.
func (d *Device) PipelineLayout(h gpucache.LayoutHandle) hal.PipelineLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelineLayouts[h]
}

// RegisterBuffer makes buf addressable by descriptor writes.
func (d *Device) RegisterBuffer(buf hal.Buffer) gpucache.ResourceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpucache.ResourceHandle(d.handle())
	d.buffers[h] = buf
	return h
}

// RegisterTextureView makes view addressable by descriptor writes and, as
// gpucache.ImageViewHandle(h), by framebuffer keys.
func (d *Device) RegisterTextureView(view hal.TextureView) gpucache.ResourceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpucache.ResourceHandle(d.handle())
	d.views[h] = view
	return h
}

// RegisterSampler makes smp addressable by descriptor writes.
func (d *Device) RegisterSampler(smp hal.Sampler) gpucache.ResourceHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpucache.ResourceHandle(d.handle())
	d.samplers[h] = smp
	return h
}

// Unregister forgets resource h. The resource itself is not destroyed.
func (d *Device) Unregister(h gpucache.ResourceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, h)
	delete(d.views, h)
	delete(d.samplers, h)
}

// Close destroys every HAL object the device still owns.
// The wrapped hal.Device is left open.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sh := range d.sets {
		d.dropSet(sh)
	}
	clear(d.pools)
	for _, pl := range d.pipelineLayouts {
		d.device.DestroyPipelineLayout(pl)
	}
	clear(d.pipelineLayouts)
	for _, sl := range d.setLayouts {
		d.device.DestroyBindGroupLayout(sl.layout)
	}
	clear(d.setLayouts)
	clear(d.renderPasses)
	clear(d.frameBuffers)
}
