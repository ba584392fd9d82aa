package software

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache"
)

// TestCachesFrameLoop drives a full cache set through frames with two frames
// in flight and checks that the device ends up holding nothing.
func TestCachesFrameLoop(t *testing.T) {
	d := New()
	tl := NewTimeline()
	caches := gpucache.NewCaches(d,
		gpucache.WithPruneDelay(1),
		gpucache.WithPoolCapacity(4),
	)

	var lk gpucache.SetLayoutKey
	lk.Stages = gpucache.StageVertex | gpucache.StageFragment
	lk.Bind(0, gpucache.BindingUniformBuffer, 1)
	layout, err := caches.GetSetLayout(lk)
	if err != nil {
		t.Fatalf("GetSetLayout() error = %v", err)
	}

	var rk gpucache.RenderPassKey
	rk.Colors[0] = gpucache.AttachmentKey{
		Format: gputypes.TextureFormatBGRA8Unorm,
		Load:   gputypes.LoadOpClear,
		Store:  gputypes.StoreOpStore,
		Layout: gpucache.ImageLayoutPresent,
	}

	const frames = 12
	for f := range frames {
		signal := tl.Next()

		rp, err := caches.GetRenderPass(rk)
		if err != nil {
			t.Fatalf("frame %d: GetRenderPass() error = %v", f, err)
		}
		fk := gpucache.FrameBufferKey{RenderPass: rp, Width: 64, Height: 64}
		fk.Colors[0] = gpucache.ImageViewHandle(100 + f%3) // three swapchain images
		if _, err := caches.GetFrameBuffer(fk); err != nil {
			t.Fatalf("frame %d: GetFrameBuffer() error = %v", f, err)
		}

		// Six distinct per-draw sets each frame force pool growth.
		for draw := range 6 {
			var sk gpucache.DescriptorSetKey
			sk.Add(gpucache.BufferDescriptor(0, gpucache.BindingUniformBuffer, 1, uint64(draw*256), 256))
			if _, err := caches.GetDescriptorSet(layout, sk, signal); err != nil {
				t.Fatalf("frame %d draw %d: GetDescriptorSet() error = %v", f, draw, err)
			}
		}

		if f >= 2 {
			tl.Complete(signal.Value() - 2)
		}
		caches.Prune()
	}

	stats := caches.Stats()
	if stats.Pool.Growths == 0 {
		t.Error("expected at least one pool growth")
	}
	if calls := d.Calls(); calls.Invalid != 0 {
		t.Errorf("device saw %d invalid calls", calls.Invalid)
	}

	tl.CompleteAll()
	caches.Destroy()
	if live := d.Live(); live.Total() != 0 {
		t.Errorf("Live() after Destroy = %+v, want all zero", live)
	}
}

// TestCachesPruneRespectsPendingSignal checks that a retired pool survives
// pruning while its frame is still in flight.
func TestCachesPruneRespectsPendingSignal(t *testing.T) {
	d := New()
	tl := NewTimeline()
	dc := gpucache.NewDescriptorCache(d, gpucache.WithPruneDelay(0), gpucache.WithPoolCapacity(2))
	lc := gpucache.NewLayoutCache(d)

	var lk gpucache.SetLayoutKey
	lk.Bind(0, gpucache.BindingUniformBuffer, 1)
	layout, err := lc.GetSetLayout(lk)
	if err != nil {
		t.Fatal(err)
	}

	signal := tl.Next()
	for i := range 3 {
		var sk gpucache.DescriptorSetKey
		sk.Add(gpucache.BufferDescriptor(0, gpucache.BindingUniformBuffer, gpucache.ResourceHandle(i+1), 0, 16))
		if _, err := dc.GetDescriptorSet(layout, sk, signal); err != nil {
			t.Fatalf("GetDescriptorSet(%d) error = %v", i, err)
		}
	}
	if got := d.Live().Pools; got != 2 {
		t.Fatalf("live pools = %d, want 2 after growth", got)
	}

	for range 3 {
		dc.Prune()
	}
	if got := d.Live().Pools; got != 2 {
		t.Errorf("live pools while pending = %d, want 2", got)
	}

	tl.CompleteAll()
	dc.Prune()
	if got := d.Live().Pools; got != 1 {
		t.Errorf("live pools after completion = %d, want 1", got)
	}
	if got := d.Live().Sets; got != 0 {
		t.Errorf("live sets after completion = %d, want 0", got)
	}
}
