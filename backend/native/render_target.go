package native

import (
	"fmt"
	"slices"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpucache"
)

// CreateRenderPass implements gpucache.Device. The description is recorded
// and consumed by BeginDescriptor.
func (d *Device) CreateRenderPass(desc *gpucache.RenderPassDescriptor) (gpucache.RenderPassHandle, error) {
	n := uint32(len(desc.Attachments)) //nolint:gosec // G115: attachment count is small
	if n == 0 {
		return 0, fmt.Errorf("native: render pass has no attachments")
	}
	for _, r := range slices.Concat(desc.ColorRefs, desc.ResolveRefs) {
		if r.Attachment != gpucache.AttachmentUnused && r.Attachment >= n {
			return 0, fmt.Errorf("native: attachment reference %d out of range", r.Attachment)
		}
	}

	cp := &gpucache.RenderPassDescriptor{
		Attachments:  slices.Clone(desc.Attachments),
		ColorRefs:    slices.Clone(desc.ColorRefs),
		ResolveRefs:  slices.Clone(desc.ResolveRefs),
		Dependencies: slices.Clone(desc.Dependencies),
	}
	if desc.DepthRef != nil {
		ref := *desc.DepthRef
		cp.DepthRef = &ref
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	h := gpucache.RenderPassHandle(d.handle())
	d.renderPasses[h] = cp
	return h, nil
}

// DestroyRenderPass implements gpucache.Device.
func (d *Device) DestroyRenderPass(h gpucache.RenderPassHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.renderPasses, h)
}

// CreateFrameBuffer implements gpucache.Device.
func (d *Device) CreateFrameBuffer(desc *gpucache.FrameBufferDescriptor) (gpucache.FrameBufferHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rp, ok := d.renderPasses[desc.RenderPass]
	if !ok {
		return 0, fmt.Errorf("native: framebuffer on unknown render pass %d", desc.RenderPass)
	}
	if len(desc.Attachments) != len(rp.Attachments) {
		return 0, fmt.Errorf("native: framebuffer has %d attachments, render pass expects %d",
			len(desc.Attachments), len(rp.Attachments))
	}
	for _, v := range desc.Attachments {
		if _, ok := d.views[gpucache.ResourceHandle(v)]; !ok {
			return 0, fmt.Errorf("native: framebuffer attachment %d is not a registered texture view", v)
		}
	}

	cp := *desc
	cp.Attachments = slices.Clone(desc.Attachments)
	h := gpucache.FrameBufferHandle(d.handle())
	d.frameBuffers[h] = &cp
	return h, nil
}

// DestroyFrameBuffer implements gpucache.Device.
func (d *Device) DestroyFrameBuffer(h gpucache.FrameBufferHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.frameBuffers, h)
}

// BeginDescriptor returns the descriptor that begins rendering into
// framebuffer fb with its render pass's load and store operations.
// Depth is cleared to 1.0.
func (d *Device) BeginDescriptor(fb gpucache.FrameBufferHandle) (*hal.RenderPassDescriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.frameBuffers[fb]
	if !ok {
		return nil, fmt.Errorf("native: unknown framebuffer %d", fb)
	}
	rp, ok := d.renderPasses[f.RenderPass]
	if !ok {
		return nil, fmt.Errorf("native: framebuffer %d outlived render pass %d", fb, f.RenderPass)
	}

	view := func(attachment uint32) hal.TextureView {
		return d.views[gpucache.ResourceHandle(f.Attachments[attachment])]
	}

	desc := &hal.RenderPassDescriptor{Label: "gpucache_render_pass"}
	for i, ref := range rp.ColorRefs {
		att := &rp.Attachments[ref.Attachment]
		ca := hal.RenderPassColorAttachment{
			View:    view(ref.Attachment),
			LoadOp:  att.LoadOp,
			StoreOp: att.StoreOp,
		}
		if i < len(rp.ResolveRefs) && rp.ResolveRefs[i].Attachment != gpucache.AttachmentUnused {
			ca.ResolveTarget = view(rp.ResolveRefs[i].Attachment)
		}
		desc.ColorAttachments = append(desc.ColorAttachments, ca)
	}
	if ref := rp.DepthRef; ref != nil {
		att := &rp.Attachments[ref.Attachment]
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              view(ref.Attachment),
			DepthLoadOp:       att.LoadOp,
			DepthStoreOp:      att.StoreOp,
			DepthClearValue:   1.0,
			StencilLoadOp:     att.LoadOp,
			StencilStoreOp:    att.StoreOp,
			StencilClearValue: 0,
		}
	}
	return desc, nil
}
