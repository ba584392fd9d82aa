package software

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucache"
)

func newSetLayout(t *testing.T, d *Device, bindings ...gpucache.LayoutBindingDescriptor) gpucache.LayoutHandle {
	t.Helper()
	h, err := d.CreateSetLayout(&gpucache.SetLayoutDescriptor{Bindings: bindings})
	if err != nil {
		t.Fatalf("CreateSetLayout() error = %v", err)
	}
	return h
}

func newPoolHandle(t *testing.T, d *Device, maxSets uint32, sizes ...gpucache.PoolSize) gpucache.PoolHandle {
	t.Helper()
	h, err := d.CreateDescriptorPool(&gpucache.PoolDescriptor{MaxSets: maxSets, Sizes: sizes})
	if err != nil {
		t.Fatalf("CreateDescriptorPool() error = %v", err)
	}
	return h
}

func uniformBinding(slot, count uint32) gpucache.LayoutBindingDescriptor {
	return gpucache.LayoutBindingDescriptor{Slot: slot, Type: gpucache.BindingUniformBuffer, Count: count}
}

func TestDeviceSetLayoutValidation(t *testing.T) {
	tests := []struct {
		name     string
		bindings []gpucache.LayoutBindingDescriptor
		wantErr  bool
	}{
		{"empty", nil, false},
		{"single", []gpucache.LayoutBindingDescriptor{uniformBinding(0, 1)}, false},
		{"duplicate slot", []gpucache.LayoutBindingDescriptor{uniformBinding(0, 1), uniformBinding(0, 1)}, true},
		{"zero count", []gpucache.LayoutBindingDescriptor{uniformBinding(0, 0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			_, err := d.CreateSetLayout(&gpucache.SetLayoutDescriptor{Bindings: tt.bindings})
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateSetLayout() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDevicePipelineLayoutUnknownSet(t *testing.T) {
	d := New()
	_, err := d.CreatePipelineLayout(&gpucache.PipelineLayoutDescriptor{
		SetLayouts: []gpucache.LayoutHandle{42},
	})
	if err == nil {
		t.Error("CreatePipelineLayout() with unknown set layout should fail")
	}
}

func TestDevicePoolExhaustedByMaxSets(t *testing.T) {
	d := New()
	layout := newSetLayout(t, d, uniformBinding(0, 1))
	pool := newPoolHandle(t, d, 2, gpucache.PoolSize{Type: gpucache.BindingUniformBuffer, Count: 16})

	for i := range 2 {
		if _, err := d.AllocateDescriptorSet(pool, layout, 0); err != nil {
			t.Fatalf("allocation %d error = %v", i, err)
		}
	}
	_, err := d.AllocateDescriptorSet(pool, layout, 0)
	if !errors.Is(err, gpucache.ErrPoolExhausted) {
		t.Errorf("third allocation error = %v, want ErrPoolExhausted", err)
	}
}

func TestDevicePoolExhaustedByType(t *testing.T) {
	d := New()
	layout := newSetLayout(t, d, uniformBinding(0, 3))
	pool := newPoolHandle(t, d, 16, gpucache.PoolSize{Type: gpucache.BindingUniformBuffer, Count: 4})

	if _, err := d.AllocateDescriptorSet(pool, layout, 0); err != nil {
		t.Fatalf("first allocation error = %v", err)
	}
	_, err := d.AllocateDescriptorSet(pool, layout, 0)
	if !errors.Is(err, gpucache.ErrPoolExhausted) {
		t.Errorf("second allocation error = %v, want ErrPoolExhausted", err)
	}
}

func TestDevicePoolMissingType(t *testing.T) {
	d := New()
	layout := newSetLayout(t, d, gpucache.LayoutBindingDescriptor{Slot: 0, Type: gpucache.BindingStorageImage, Count: 1})
	pool := newPoolHandle(t, d, 16, gpucache.PoolSize{Type: gpucache.BindingUniformBuffer, Count: 4})

	_, err := d.AllocateDescriptorSet(pool, layout, 0)
	if !errors.Is(err, gpucache.ErrPoolExhausted) {
		t.Errorf("allocation error = %v, want ErrPoolExhausted", err)
	}
}

func TestDevicePoolFragmented(t *testing.T) {
	d := New()
	one := newSetLayout(t, d, uniformBinding(0, 1))
	two := newSetLayout(t, d, uniformBinding(0, 2))
	pool := newPoolHandle(t, d, 16, gpucache.PoolSize{Type: gpucache.BindingUniformBuffer, Count: 4})

	// Fill [0,4) with four single descriptors, then free 0 and 2.
	var sets []gpucache.SetHandle
	for range 4 {
		s, err := d.AllocateDescriptorSet(pool, one, 0)
		if err != nil {
			t.Fatalf("AllocateDescriptorSet() error = %v", err)
		}
		sets = append(sets, s)
	}
	d.FreeDescriptorSet(pool, sets[0])
	d.FreeDescriptorSet(pool, sets[2])

	_, err := d.AllocateDescriptorSet(pool, two, 0)
	if !errors.Is(err, gpucache.ErrPoolFragmented) {
		t.Fatalf("allocation error = %v, want ErrPoolFragmented", err)
	}

	// Freeing the neighbor of a hole coalesces it.
	d.FreeDescriptorSet(pool, sets[1])
	if _, err := d.AllocateDescriptorSet(pool, two, 0); err != nil {
		t.Errorf("allocation after coalescing error = %v", err)
	}
}

func TestDeviceVariableCount(t *testing.T) {
	d := New()
	layout := newSetLayout(t, d, gpucache.LayoutBindingDescriptor{
		Slot:          0,
		Type:          gpucache.BindingSampledImage,
		Count:         gpucache.UnboundedCount,
		VariableCount: true,
	})
	pool := newPoolHandle(t, d, 16, gpucache.PoolSize{Type: gpucache.BindingSampledImage, Count: 10})

	if _, err := d.AllocateDescriptorSet(pool, layout, 8); err != nil {
		t.Fatalf("allocation of 8 error = %v", err)
	}
	if _, err := d.AllocateDescriptorSet(pool, layout, 8); !errors.Is(err, gpucache.ErrPoolExhausted) {
		t.Errorf("second allocation error = %v, want ErrPoolExhausted", err)
	}
	if _, err := d.AllocateDescriptorSet(pool, layout, gpucache.UnboundedCount+1); err == nil {
		t.Error("variable count above the layout maximum should fail")
	}
}

func TestDeviceDestroyPoolReleasesSets(t *testing.T) {
	d := New()
	layout := newSetLayout(t, d, uniformBinding(0, 1))
	pool := newPoolHandle(t, d, 4, gpucache.PoolSize{Type: gpucache.BindingUniformBuffer, Count: 4})
	for range 3 {
		if _, err := d.AllocateDescriptorSet(pool, layout, 0); err != nil {
			t.Fatal(err)
		}
	}
	if got := d.PoolSets(pool); got != 3 {
		t.Fatalf("PoolSets() = %d, want 3", got)
	}

	d.DestroyDescriptorPool(pool)
	live := d.Live()
	if live.Pools != 0 || live.Sets != 0 {
		t.Errorf("Live() = %+v, want no pools or sets", live)
	}
	if got := d.PoolSets(pool); got != -1 {
		t.Errorf("PoolSets() of destroyed pool = %d, want -1", got)
	}
}

func TestDeviceFrameBufferValidation(t *testing.T) {
	d := New()
	rp, err := d.CreateRenderPass(&gpucache.RenderPassDescriptor{
		Attachments: []gpucache.AttachmentDescription{{Samples: 1}},
		ColorRefs:   []gpucache.AttachmentReference{{Attachment: 0}},
	})
	if err != nil {
		t.Fatalf("CreateRenderPass() error = %v", err)
	}

	tests := []struct {
		name    string
		desc    gpucache.FrameBufferDescriptor
		wantErr bool
	}{
		{"ok", gpucache.FrameBufferDescriptor{RenderPass: rp, Attachments: []gpucache.ImageViewHandle{1}, Width: 4, Height: 4, Layers: 1}, false},
		{"unknown pass", gpucache.FrameBufferDescriptor{RenderPass: rp + 100, Attachments: []gpucache.ImageViewHandle{1}, Width: 4, Height: 4, Layers: 1}, true},
		{"attachment mismatch", gpucache.FrameBufferDescriptor{RenderPass: rp, Attachments: []gpucache.ImageViewHandle{1, 2}, Width: 4, Height: 4, Layers: 1}, true},
		{"zero layers", gpucache.FrameBufferDescriptor{RenderPass: rp, Attachments: []gpucache.ImageViewHandle{1}, Width: 4, Height: 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreateFrameBuffer(&tt.desc)
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateFrameBuffer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDeviceRenderPassReferenceRange(t *testing.T) {
	d := New()
	_, err := d.CreateRenderPass(&gpucache.RenderPassDescriptor{
		Attachments: []gpucache.AttachmentDescription{{Samples: 1}},
		ColorRefs:   []gpucache.AttachmentReference{{Attachment: 3}},
	})
	if err == nil {
		t.Error("CreateRenderPass() with out-of-range reference should fail")
	}
}

func TestDeviceInvalidCallsCounted(t *testing.T) {
	d := New()
	d.DestroySetLayout(7)
	d.DestroyRenderPass(8)
	d.FreeDescriptorSet(1, 2)
	if got := d.Calls().Invalid; got != 3 {
		t.Errorf("Calls().Invalid = %d, want 3", got)
	}
}

func TestDeviceUpdateCountsWrites(t *testing.T) {
	d := New()
	layout := newSetLayout(t, d, uniformBinding(0, 1))
	pool := newPoolHandle(t, d, 4, gpucache.PoolSize{Type: gpucache.BindingUniformBuffer, Count: 4})
	set, err := d.AllocateDescriptorSet(pool, layout, 0)
	if err != nil {
		t.Fatal(err)
	}

	d.UpdateDescriptorSets(&gpucache.DescriptorUpdate{
		Writes: []gpucache.DescriptorWrite{
			{Set: set, Slot: 0, Type: gpucache.BindingUniformBuffer, Count: 1, First: 0},
			{Set: set, Slot: 0, Type: gpucache.BindingUniformBuffer, Count: 1, First: 5},
		},
		Buffers: []gpucache.BufferInfo{{Buffer: 1, Range: 64}},
	})
	if got := d.SetWrites(set); got != 1 {
		t.Errorf("SetWrites() = %d, want 1", got)
	}
	if got := d.Calls().Invalid; got != 1 {
		t.Errorf("Calls().Invalid = %d, want 1 for the out-of-range write", got)
	}
}
