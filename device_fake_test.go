package gpucache

import (
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
)

// fakePool is a descriptor pool of the fake device.
type fakePool struct {
	desc PoolDescriptor
	sets map[SetHandle]bool
}

// fakeDevice is an in-memory Device that records every call.
type fakeDevice struct {
	t    testing.TB
	next uint64

	setLayouts      map[LayoutHandle]*SetLayoutDescriptor
	pipelineLayouts map[LayoutHandle]*PipelineLayoutDescriptor
	renderPasses    map[RenderPassHandle]*RenderPassDescriptor
	frameBuffers    map[FrameBufferHandle]*FrameBufferDescriptor
	pools           map[PoolHandle]*fakePool
	setPool         map[SetHandle]PoolHandle

	// createErr fails every Create call when set.
	createErr error
	// allocErr fails every allocation when set.
	allocErr error

	creates, destroys int
	allocs, frees     int
	updates           []DescriptorUpdate
	variableCounts    []uint32
}

var _ Device = (*fakeDevice)(nil)

func newFakeDevice(t testing.TB) *fakeDevice {
	t.Helper()
	return &fakeDevice{
		t:               t,
		setLayouts:      make(map[LayoutHandle]*SetLayoutDescriptor),
		pipelineLayouts: make(map[LayoutHandle]*PipelineLayoutDescriptor),
		renderPasses:    make(map[RenderPassHandle]*RenderPassDescriptor),
		frameBuffers:    make(map[FrameBufferHandle]*FrameBufferDescriptor),
		pools:           make(map[PoolHandle]*fakePool),
		setPool:         make(map[SetHandle]PoolHandle),
	}
}

func (d *fakeDevice) handle() uint64 {
	d.next++
	return d.next
}

func (d *fakeDevice) CreateSetLayout(desc *SetLayoutDescriptor) (LayoutHandle, error) {
	if d.createErr != nil {
		return 0, d.createErr
	}
	h := LayoutHandle(d.handle())
	d.setLayouts[h] = &SetLayoutDescriptor{Bindings: slices.Clone(desc.Bindings)}
	d.creates++
	return h, nil
}

func (d *fakeDevice) DestroySetLayout(h LayoutHandle) {
	if _, ok := d.setLayouts[h]; !ok {
		d.t.Errorf("DestroySetLayout(%d): unknown handle", h)
	}
	delete(d.setLayouts, h)
	d.destroys++
}

func (d *fakeDevice) CreatePipelineLayout(desc *PipelineLayoutDescriptor) (LayoutHandle, error) {
	if d.createErr != nil {
		return 0, d.createErr
	}
	for _, s := range desc.SetLayouts {
		if _, ok := d.setLayouts[s]; !ok {
			d.t.Errorf("CreatePipelineLayout: unknown set layout %d", s)
		}
	}
	h := LayoutHandle(d.handle())
	d.pipelineLayouts[h] = &PipelineLayoutDescriptor{
		SetLayouts:    slices.Clone(desc.SetLayouts),
		PushConstants: slices.Clone(desc.PushConstants),
	}
	d.creates++
	return h, nil
}

func (d *fakeDevice) DestroyPipelineLayout(h LayoutHandle) {
	if _, ok := d.pipelineLayouts[h]; !ok {
		d.t.Errorf("DestroyPipelineLayout(%d): unknown handle", h)
	}
	delete(d.pipelineLayouts, h)
	d.destroys++
}

func (d *fakeDevice) CreateRenderPass(desc *RenderPassDescriptor) (RenderPassHandle, error) {
	if d.createErr != nil {
		return 0, d.createErr
	}
	h := RenderPassHandle(d.handle())
	cp := *desc
	d.renderPasses[h] = &cp
	d.creates++
	return h, nil
}

func (d *fakeDevice) DestroyRenderPass(h RenderPassHandle) {
	if _, ok := d.renderPasses[h]; !ok {
		d.t.Errorf("DestroyRenderPass(%d): unknown handle", h)
	}
	for fb, desc := range d.frameBuffers {
		if desc.RenderPass == h {
			d.t.Errorf("DestroyRenderPass(%d) while framebuffer %d uses it", h, fb)
		}
	}
	delete(d.renderPasses, h)
	d.destroys++
}

func (d *fakeDevice) CreateFrameBuffer(desc *FrameBufferDescriptor) (FrameBufferHandle, error) {
	if d.createErr != nil {
		return 0, d.createErr
	}
	if _, ok := d.renderPasses[desc.RenderPass]; !ok {
		d.t.Errorf("CreateFrameBuffer: unknown render pass %d", desc.RenderPass)
	}
	h := FrameBufferHandle(d.handle())
	cp := *desc
	cp.Attachments = slices.Clone(desc.Attachments)
	d.frameBuffers[h] = &cp
	d.creates++
	return h, nil
}

func (d *fakeDevice) DestroyFrameBuffer(h FrameBufferHandle) {
	if _, ok := d.frameBuffers[h]; !ok {
		d.t.Errorf("DestroyFrameBuffer(%d): unknown handle", h)
	}
	delete(d.frameBuffers, h)
	d.destroys++
}

func (d *fakeDevice) CreateDescriptorPool(desc *PoolDescriptor) (PoolHandle, error) {
	if d.createErr != nil {
		return 0, d.createErr
	}
	h := PoolHandle(d.handle())
	d.pools[h] = &fakePool{
		desc: PoolDescriptor{MaxSets: desc.MaxSets, Sizes: slices.Clone(desc.Sizes)},
		sets: make(map[SetHandle]bool),
	}
	d.creates++
	return h, nil
}

func (d *fakeDevice) DestroyDescriptorPool(h PoolHandle) {
	p, ok := d.pools[h]
	if !ok {
		d.t.Errorf("DestroyDescriptorPool(%d): unknown handle", h)
		return
	}
	for s := range p.sets {
		delete(d.setPool, s)
	}
	delete(d.pools, h)
	d.destroys++
}

func (d *fakeDevice) AllocateDescriptorSet(pool PoolHandle, layout LayoutHandle, variableCount uint32) (SetHandle, error) {
	if d.allocErr != nil {
		return 0, d.allocErr
	}
	p, ok := d.pools[pool]
	if !ok {
		d.t.Errorf("AllocateDescriptorSet: unknown pool %d", pool)
		return 0, ErrPoolExhausted
	}
	if _, ok := d.setLayouts[layout]; !ok {
		d.t.Errorf("AllocateDescriptorSet: unknown layout %d", layout)
	}
	if len(p.sets) >= int(p.desc.MaxSets) {
		return 0, ErrPoolExhausted
	}
	h := SetHandle(d.handle())
	p.sets[h] = true
	d.setPool[h] = pool
	d.allocs++
	d.variableCounts = append(d.variableCounts, variableCount)
	return h, nil
}

func (d *fakeDevice) FreeDescriptorSet(pool PoolHandle, set SetHandle) {
	p, ok := d.pools[pool]
	if !ok || !p.sets[set] {
		d.t.Errorf("FreeDescriptorSet(%d, %d): unknown set", pool, set)
		return
	}
	delete(p.sets, set)
	delete(d.setPool, set)
	d.frees++
}

func (d *fakeDevice) UpdateDescriptorSets(u *DescriptorUpdate) {
	for _, w := range u.Writes {
		if _, ok := d.setPool[w.Set]; !ok {
			d.t.Errorf("UpdateDescriptorSets: write to dead set %d", w.Set)
		}
	}
	d.updates = append(d.updates, DescriptorUpdate{
		Writes:        slices.Clone(u.Writes),
		Buffers:       slices.Clone(u.Buffers),
		Images:        slices.Clone(u.Images),
		Accelerations: slices.Clone(u.Accelerations),
	})
}

// liveSets returns the number of sets allocated and not yet freed or
// destroyed with their pool.
func (d *fakeDevice) liveSets() int {
	return len(d.setPool)
}

// live returns the number of live driver objects of every kind.
func (d *fakeDevice) live() int {
	return len(d.setLayouts) + len(d.pipelineLayouts) + len(d.renderPasses) +
		len(d.frameBuffers) + len(d.pools) + len(d.setPool)
}

// toggleSignal is a completion signal flipped explicitly by tests.
type toggleSignal struct {
	done bool
}

func (s *toggleSignal) IsComplete() bool { return s.done }

// uniformSetKey returns a one-binding set key over buffer buf.
func uniformSetKey(buf ResourceHandle) DescriptorSetKey {
	var k DescriptorSetKey
	k.Add(BufferDescriptor(0, BindingUniformBuffer, buf, 0, 256))
	return k
}

// uniformLayout creates a set layout with one uniform buffer at slot 0.
func uniformLayout(t testing.TB, d Device) LayoutHandle {
	t.Helper()
	var k SetLayoutKey
	k.Stages = StageVertex
	k.Bind(0, BindingUniformBuffer, 1)
	h, err := NewLayoutCache(d).GetSetLayout(k)
	if err != nil {
		t.Fatalf("GetSetLayout() error = %v", err)
	}
	return h
}

func colorPassKey(layout ImageLayout) RenderPassKey {
	var k RenderPassKey
	k.Colors[0] = AttachmentKey{
		Format: gputypes.TextureFormatBGRA8Unorm,
		Load:   gputypes.LoadOpClear,
		Store:  gputypes.StoreOpStore,
		Layout: layout,
	}
	return k
}
