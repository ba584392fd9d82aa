// Package software provides a CPU reference implementation of
// gpucache.Device.
//
// The device creates no GPU objects. It validates every call the caches
// make, keeps exact accounting of live objects, and models descriptor
// pools with fixed per-type capacity and first-fit allocation, so pool
// exhaustion and fragmentation behave as they do on a driver.
package software

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/gpucache"
)

// Live counts the objects a device currently holds.
type Live struct {
	SetLayouts      int `yaml:"set_layouts" json:"set_layouts" msgpack:"set_layouts" cbor:"set_layouts"`
	PipelineLayouts int `yaml:"pipeline_layouts" json:"pipeline_layouts" msgpack:"pipeline_layouts" cbor:"pipeline_layouts"`
	RenderPasses    int `yaml:"render_passes" json:"render_passes" msgpack:"render_passes" cbor:"render_passes"`
	FrameBuffers    int `yaml:"framebuffers" json:"framebuffers" msgpack:"framebuffers" cbor:"framebuffers"`
	Pools           int `yaml:"pools" json:"pools" msgpack:"pools" cbor:"pools"`
	Sets            int `yaml:"sets" json:"sets" msgpack:"sets" cbor:"sets"`
}

// Total returns the number of live objects of every kind.
func (l Live) Total() int {
	return l.SetLayouts + l.PipelineLayouts + l.RenderPasses + l.FrameBuffers + l.Pools + l.Sets
}

// Calls counts device calls by kind.
type Calls struct {
	Creates     int `yaml:"creates" json:"creates" msgpack:"creates" cbor:"creates"`
	Destroys    int `yaml:"destroys" json:"destroys" msgpack:"destroys" cbor:"destroys"`
	Allocations int `yaml:"allocations" json:"allocations" msgpack:"allocations" cbor:"allocations"`
	Frees       int `yaml:"frees" json:"frees" msgpack:"frees" cbor:"frees"`
	Updates     int `yaml:"updates" json:"updates" msgpack:"updates" cbor:"updates"`
	Writes      int `yaml:"writes" json:"writes" msgpack:"writes" cbor:"writes"`
	// Invalid counts calls on unknown handles.
	Invalid int `yaml:"invalid" json:"invalid" msgpack:"invalid" cbor:"invalid"`
}

type set struct {
	pool   gpucache.PoolHandle
	layout gpucache.LayoutHandle
	held   []reservation
	writes int
}

// Device is a software gpucache.Device. It is safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	next uint64

	setLayouts      map[gpucache.LayoutHandle]*gpucache.SetLayoutDescriptor
	pipelineLayouts map[gpucache.LayoutHandle]struct{}
	renderPasses    map[gpucache.RenderPassHandle]int
	frameBuffers    map[gpucache.FrameBufferHandle]gpucache.RenderPassHandle
	pools           map[gpucache.PoolHandle]*pool
	sets            map[gpucache.SetHandle]*set

	calls Calls
}

var _ gpucache.Device = (*Device)(nil)

// New creates an empty device.
func New() *Device {
	return &Device{
		setLayouts:      make(map[gpucache.LayoutHandle]*gpucache.SetLayoutDescriptor),
		pipelineLayouts: make(map[gpucache.LayoutHandle]struct{}),
		renderPasses:    make(map[gpucache.RenderPassHandle]int),
		frameBuffers:    make(map[gpucache.FrameBufferHandle]gpucache.RenderPassHandle),
		pools:           make(map[gpucache.PoolHandle]*pool),
		sets:            make(map[gpucache.SetHandle]*set),
	}
}

func slogger() *slog.Logger { return gpucache.Logger() }

// handle returns a fresh non-zero handle value. Handles are unique across
// object kinds.
func (d *Device) handle() uint64 {
	d.next++
	return d.next
}

func (d *Device) invalid(op string, h uint64) {
	d.calls.Invalid++
	slogger().Warn("software: call on unknown handle", "op", op, "handle", h)
}

// CreateSetLayout implements gpucache.Device.
func (d *Device) CreateSetLayout(desc *gpucache.SetLayoutDescriptor) (gpucache.LayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[uint32]bool, len(desc.Bindings))
	for _, b := range desc.Bindings {
		if seen[b.Slot] {
			return 0, fmt.Errorf("software: set layout binds slot %d twice", b.Slot)
		}
		seen[b.Slot] = true
		if b.Count == 0 {
			return 0, fmt.Errorf("software: set layout slot %d has zero count", b.Slot)
		}
	}

	h := gpucache.LayoutHandle(d.handle())
	cp := &gpucache.SetLayoutDescriptor{Bindings: slices.Clone(desc.Bindings)}
	d.setLayouts[h] = cp
	d.calls.Creates++
	return h, nil
}

// DestroySetLayout implements gpucache.Device.
func (d *Device) DestroySetLayout(h gpucache.LayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.setLayouts[h]; !ok {
		d.invalid("DestroySetLayout", uint64(h))
		return
	}
	delete(d.setLayouts, h)
	d.calls.Destroys++
}

// CreatePipelineLayout implements gpucache.Device.
func (d *Device) CreatePipelineLayout(desc *gpucache.PipelineLayoutDescriptor) (gpucache.LayoutHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, sl := range desc.SetLayouts {
		if _, ok := d.setLayouts[sl]; !ok {
			return 0, fmt.Errorf("software: pipeline layout set %d: unknown set layout %d", i, sl)
		}
	}
	h := gpucache.LayoutHandle(d.handle())
	d.pipelineLayouts[h] = struct{}{}
	d.calls.Creates++
	return h, nil
}

// DestroyPipelineLayout implements gpucache.Device.
func (d *Device) DestroyPipelineLayout(h gpucache.LayoutHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelineLayouts[h]; !ok {
		d.invalid("DestroyPipelineLayout", uint64(h))
		return
	}
	delete(d.pipelineLayouts, h)
	d.calls.Destroys++
}

// CreateRenderPass implements gpucache.Device.
func (d *Device) CreateRenderPass(desc *gpucache.RenderPassDescriptor) (gpucache.RenderPassHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := uint32(len(desc.Attachments)) //nolint:gosec // G115: attachment count is small
	if n == 0 {
		return 0, fmt.Errorf("software: render pass has no attachments")
	}
	refs := slices.Concat(desc.ColorRefs, desc.ResolveRefs)
	if desc.DepthRef != nil {
		refs = append(refs, *desc.DepthRef)
	}
	for _, r := range refs {
		if r.Attachment != gpucache.AttachmentUnused && r.Attachment >= n {
			return 0, fmt.Errorf("software: attachment reference %d out of range (%d attachments)", r.Attachment, n)
		}
	}
	if len(desc.ResolveRefs) > 0 && len(desc.ResolveRefs) != len(desc.ColorRefs) {
		return 0, fmt.Errorf("software: %d resolve references for %d color references",
			len(desc.ResolveRefs), len(desc.ColorRefs))
	}

	h := gpucache.RenderPassHandle(d.handle())
	d.renderPasses[h] = int(n)
	d.calls.Creates++
	return h, nil
}

// DestroyRenderPass implements gpucache.Device.
func (d *Device) DestroyRenderPass(h gpucache.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses[h]; !ok {
		d.invalid("DestroyRenderPass", uint64(h))
		return
	}
	for _, rp := range d.frameBuffers {
		if rp == h {
			slogger().Warn("software: render pass destroyed while framebuffers use it", "render_pass", uint64(h))
			break
		}
	}
	delete(d.renderPasses, h)
	d.calls.Destroys++
}

// CreateFrameBuffer implements gpucache.Device.
func (d *Device) CreateFrameBuffer(desc *gpucache.FrameBufferDescriptor) (gpucache.FrameBufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.renderPasses[desc.RenderPass]
	if !ok {
		return 0, fmt.Errorf("software: framebuffer on unknown render pass %d", desc.RenderPass)
	}
	if len(desc.Attachments) != n {
		return 0, fmt.Errorf("software: framebuffer has %d attachments, render pass expects %d", len(desc.Attachments), n)
	}
	if desc.Width == 0 || desc.Height == 0 || desc.Layers == 0 {
		return 0, fmt.Errorf("software: framebuffer extent %dx%dx%d", desc.Width, desc.Height, desc.Layers)
	}

	h := gpucache.FrameBufferHandle(d.handle())
	d.frameBuffers[h] = desc.RenderPass
	d.calls.Creates++
	return h, nil
}

// DestroyFrameBuffer implements gpucache.Device.
func (d *Device) DestroyFrameBuffer(h gpucache.FrameBufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.frameBuffers[h]; !ok {
		d.invalid("DestroyFrameBuffer", uint64(h))
		return
	}
	delete(d.frameBuffers, h)
	d.calls.Destroys++
}

// CreateDescriptorPool implements gpucache.Device.
func (d *Device) CreateDescriptorPool(desc *gpucache.PoolDescriptor) (gpucache.PoolHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if desc.MaxSets == 0 {
		return 0, fmt.Errorf("software: descriptor pool with zero max sets")
	}
	h := gpucache.PoolHandle(d.handle())
	d.pools[h] = newPool(desc)
	d.calls.Creates++
	return h, nil
}

// DestroyDescriptorPool implements gpucache.Device. Sets allocated from the
// pool are released with it.
func (d *Device) DestroyDescriptorPool(h gpucache.PoolHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[h]
	if !ok {
		d.invalid("DestroyDescriptorPool", uint64(h))
		return
	}
	for s := range p.sets {
		delete(d.sets, s)
	}
	delete(d.pools, h)
	d.calls.Destroys++
}

// AllocateDescriptorSet implements gpucache.Device. A full pool reports
// gpucache.ErrPoolExhausted, or gpucache.ErrPoolFragmented when enough
// descriptors are free but not contiguous.
func (d *Device) AllocateDescriptorSet(ph gpucache.PoolHandle, lh gpucache.LayoutHandle, variableCount uint32) (gpucache.SetHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pools[ph]
	if !ok {
		return 0, fmt.Errorf("software: allocate from unknown pool %d", ph)
	}
	layout, ok := d.setLayouts[lh]
	if !ok {
		return 0, fmt.Errorf("software: allocate with unknown set layout %d", lh)
	}

	need := make([]reservation, 0, len(layout.Bindings))
	for _, b := range layout.Bindings {
		n := b.Count
		if b.VariableCount {
			if variableCount > b.Count {
				return 0, fmt.Errorf("software: variable count %d exceeds slot %d maximum %d", variableCount, b.Slot, b.Count)
			}
			n = variableCount
		}
		if n > 0 {
			need = append(need, reservation{typ: b.Type, size: n})
		}
	}

	held, err := p.reserve(need)
	if err != nil {
		return 0, err
	}
	h := gpucache.SetHandle(d.handle())
	p.sets[h] = struct{}{}
	d.sets[h] = &set{pool: ph, layout: lh, held: held}
	d.calls.Allocations++
	return h, nil
}

// FreeDescriptorSet implements gpucache.Device.
func (d *Device) FreeDescriptorSet(ph gpucache.PoolHandle, sh gpucache.SetHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[sh]
	if !ok || s.pool != ph {
		d.invalid("FreeDescriptorSet", uint64(sh))
		return
	}
	p := d.pools[ph]
	p.unreserve(s.held)
	delete(p.sets, sh)
	delete(d.sets, sh)
	d.calls.Frees++
}

// UpdateDescriptorSets implements gpucache.Device.
func (d *Device) UpdateDescriptorSets(u *gpucache.DescriptorUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls.Updates++
	for i := range u.Writes {
		w := &u.Writes[i]
		s, ok := d.sets[w.Set]
		if !ok {
			d.invalid("UpdateDescriptorSets", uint64(w.Set))
			continue
		}
		if !d.writeInRange(u, w) {
			slogger().Warn("software: descriptor write payload out of range",
				"set", uint64(w.Set), "slot", w.Slot, "type", w.Type.String())
			d.calls.Invalid++
			continue
		}
		s.writes++
		d.calls.Writes++
	}
}

func (d *Device) writeInRange(u *gpucache.DescriptorUpdate, w *gpucache.DescriptorWrite) bool {
	end := int(w.First) + int(w.Count)
	switch {
	case w.Type.IsBuffer():
		return end <= len(u.Buffers)
	case w.Type.IsImage():
		return end <= len(u.Images)
	default:
		return end <= len(u.Accelerations)
	}
}

// Live returns the number of live objects of each kind.
func (d *Device) Live() Live {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Live{
		SetLayouts:      len(d.setLayouts),
		PipelineLayouts: len(d.pipelineLayouts),
		RenderPasses:    len(d.renderPasses),
		FrameBuffers:    len(d.frameBuffers),
		Pools:           len(d.pools),
		Sets:            len(d.sets),
	}
}

// Calls returns call counters.
func (d *Device) Calls() Calls {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// PoolSets returns the number of live sets in pool h, or -1 if h is unknown.
func (d *Device) PoolSets(h gpucache.PoolHandle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pools[h]
	if !ok {
		return -1
	}
	return len(p.sets)
}

// SetWrites returns how many descriptor writes have been applied to set h.
func (d *Device) SetWrites(h gpucache.SetHandle) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sets[h]; ok {
		return s.writes
	}
	return 0
}
