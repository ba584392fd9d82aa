package gpucache

import (
	"errors"
	"sync"
	"testing"
)

// TestCachesPruneEverywhere checks that one Prune per frame, with every
// signal complete, releases every unreferenced object except layouts.
func TestCachesPruneEverywhere(t *testing.T) {
	d := newFakeDevice(t)
	c := NewCaches(d, WithPruneDelay(1))

	var lk SetLayoutKey
	lk.Bind(0, BindingUniformBuffer, 1)
	layout, err := c.GetSetLayout(lk)
	if err != nil {
		t.Fatal(err)
	}
	pk := PipelineLayoutKey{SetCount: 1}
	pk.Sets[0] = lk
	if _, err := c.GetPipelineLayout(pk); err != nil {
		t.Fatal(err)
	}
	rp, err := c.GetRenderPass(colorPassKey(ImageLayoutPresent))
	if err != nil {
		t.Fatal(err)
	}
	fk := FrameBufferKey{RenderPass: rp, Width: 32, Height: 32}
	fk.Colors[0] = 1
	if _, err := c.GetFrameBuffer(fk); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetDescriptorSet(layout, uniformSetKey(1), Completed); err != nil {
		t.Fatal(err)
	}

	if n := c.Prune(); n != 0 {
		t.Fatalf("first Prune() = %d, want 0 within the delay", n)
	}
	if n := c.Prune(); n != 3 {
		t.Errorf("second Prune() = %d, want 3 (framebuffer, render pass, set)", n)
	}

	s := c.Stats()
	if s.FrameBuffers.Len != 0 || s.RenderPasses.Len != 0 || s.Descriptors.Len != 0 {
		t.Errorf("Stats() after pruning = %+v", s)
	}
	if len(d.setLayouts) != 1 || len(d.pipelineLayouts) != 1 {
		t.Error("layouts must never be pruned")
	}
	if len(d.renderPasses) != 0 || len(d.frameBuffers) != 0 || d.liveSets() != 0 {
		t.Errorf("device still holds %d passes, %d framebuffers, %d sets",
			len(d.renderPasses), len(d.frameBuffers), d.liveSets())
	}
}

func TestCachesConcurrentUse(t *testing.T) {
	d := newFakeDevice(t)
	c := NewCaches(d, WithPruneDelay(2), WithPoolCapacity(8))
	t.Cleanup(c.Destroy)

	var lk SetLayoutKey
	lk.Bind(0, BindingUniformBuffer, 1)
	layout, err := c.GetSetLayout(lk)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := uniformSetKey(ResourceHandle((w*7 + i) % 24))
				if _, err := c.GetDescriptorSet(layout, key, Completed); err != nil {
					t.Errorf("GetDescriptorSet() error = %v", err)
					return
				}
				if _, err := c.GetRenderPass(colorPassKey(ImageLayoutColorAttachment)); err != nil {
					t.Errorf("GetRenderPass() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 100 {
			c.Prune()
			_ = c.Stats()
		}
	}()
	wg.Wait()

	s := c.Stats()
	if s.Descriptors.Hits+s.Descriptors.Misses != workers*200 {
		t.Errorf("descriptor lookups = %d, want %d", s.Descriptors.Hits+s.Descriptors.Misses, workers*200)
	}
}

func TestCachesResetStats(t *testing.T) {
	d := newFakeDevice(t)
	c := NewCaches(d)

	for range 3 {
		if _, err := c.GetRenderPass(colorPassKey(ImageLayoutPresent)); err != nil {
			t.Fatal(err)
		}
	}
	if s := c.Stats().RenderPasses; s.Hits != 2 || s.Misses != 1 {
		t.Fatalf("render pass stats = %+v", s)
	}

	c.ResetStats()
	s := c.Stats().RenderPasses
	if s.Hits != 0 || s.Misses != 0 || s.HitRate != 0 {
		t.Errorf("stats after ResetStats = %+v", s)
	}
	if s.Len != 1 {
		t.Errorf("Len = %d, ResetStats must not evict", s.Len)
	}
}

func TestCachesDestroy(t *testing.T) {
	d := newFakeDevice(t)
	c := NewCaches(d, WithPoolCapacity(1))

	var lk SetLayoutKey
	lk.Bind(0, BindingUniformBuffer, 1)
	layout, err := c.GetSetLayout(lk)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if _, err := c.GetDescriptorSet(layout, uniformSetKey(ResourceHandle(i+1)), &toggleSignal{}); err != nil {
			t.Fatal(err)
		}
	}
	rp, err := c.GetRenderPass(colorPassKey(ImageLayoutPresent))
	if err != nil {
		t.Fatal(err)
	}
	fk := FrameBufferKey{RenderPass: rp, Width: 8, Height: 8}
	fk.Colors[0] = 1
	if _, err := c.GetFrameBuffer(fk); err != nil {
		t.Fatal(err)
	}

	c.Destroy()
	if n := d.live(); n != 0 {
		t.Errorf("live objects after Destroy = %d", n)
	}
	if _, err := c.GetSetLayout(lk); !errors.Is(err, ErrClosed) {
		t.Errorf("GetSetLayout() after Destroy error = %v, want ErrClosed", err)
	}
	if _, err := c.GetDescriptorSet(layout, uniformSetKey(1), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("GetDescriptorSet() after Destroy error = %v, want ErrClosed", err)
	}
}
