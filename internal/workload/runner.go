package workload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gpucache"
	"github.com/gogpu/gpucache/backend/software"
)

// Runner replays a workload on a software device. Completion is simulated
// with a timeline that trails submission by FramesInFlight frames.
type Runner struct {
	w        *Workload
	device   *software.Device
	timeline *software.Timeline
	caches   *gpucache.Caches
	log      *slog.Logger

	passes []gpucache.RenderPassKey
	layout gpucache.SetLayoutKey
	fresh  uint64

	peakSets    int
	peakExtinct int
	peakPools   int
}

// NewRunner prepares w for replay.
func NewRunner(w *Workload) (*Runner, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		w:        w,
		device:   software.New(),
		timeline: software.NewTimeline(),
		log:      gpucache.Logger().With("workload", w.Name),
		layout:   w.Sets.SetLayoutKey(),
	}
	for i := range w.Passes {
		k, err := w.Passes[i].Key()
		if err != nil {
			return nil, err
		}
		r.passes = append(r.passes, k)
	}
	r.caches = gpucache.NewCaches(r.device, w.Config().Options()...)
	return r, nil
}

// Run replays every frame, then waits for all work and destroys the caches.
// It stops early with ctx's error if ctx is cancelled between frames.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	var layout gpucache.LayoutHandle
	if r.w.Sets.PerFrame > 0 {
		var err error
		if layout, err = r.caches.GetSetLayout(r.layout); err != nil {
			r.shutdown()
			return nil, err
		}
	}

	frames := 0
	for f := range r.w.Frames {
		if err := ctx.Err(); err != nil {
			r.shutdown()
			return nil, err
		}
		if err := r.frame(f, layout); err != nil {
			r.shutdown()
			return nil, fmt.Errorf("frame %d: %w", f, err)
		}
		frames++
	}

	stats := r.caches.Stats()
	calls := r.device.Calls()
	r.shutdown()
	rep := &Report{
		Workload:    r.w.Name,
		Frames:      frames,
		Caches:      stats,
		Calls:       calls,
		Leaked:      r.device.Live(),
		PeakSets:    r.peakSets,
		PeakPools:   r.peakPools,
		PeakExtinct: r.peakExtinct,
		Elapsed:     time.Since(start),
	}
	r.log.Info("workload: replay finished",
		"frames", frames,
		"growths", stats.Pool.Growths,
		"reclaimed", stats.Pool.Reclaimed,
		"leaked", rep.Leaked.Total())
	return rep, nil
}

func (r *Runner) frame(f int, layout gpucache.LayoutHandle) error {
	signal := r.timeline.Next()

	for i := range r.passes {
		rp, err := r.caches.GetRenderPass(r.passes[i])
		if err != nil {
			return fmt.Errorf("pass %s: %w", r.w.Passes[i].Name, err)
		}
		if _, err := r.caches.GetFrameBuffer(r.frameBufferKey(f, i, rp)); err != nil {
			return fmt.Errorf("pass %s: %w", r.w.Passes[i].Name, err)
		}
	}

	for d := range r.w.Sets.PerFrame {
		id := uint64(d) //nolint:gosec // G115: d is non-negative
		if d >= r.w.Sets.WorkingSet {
			r.fresh++
			id = uint64(r.w.Sets.WorkingSet) + r.fresh //nolint:gosec // G115: validated non-negative
		}
		key := r.setKey(id)
		if _, err := r.caches.GetDescriptorSet(layout, key, signal); err != nil {
			return fmt.Errorf("set %d: %w", d, err)
		}
	}

	if lag := uint64(r.w.FramesInFlight); signal.Value() > lag { //nolint:gosec // G115: validated positive
		r.timeline.Complete(signal.Value() - lag)
	}
	if (f+1)%r.w.PruneEvery == 0 {
		if n := r.caches.Prune(); n > 0 {
			r.log.Debug("workload: pruned", "frame", f, "freed", n)
		}
	}

	live := r.device.Live()
	pool := r.caches.Stats().Pool
	r.peakSets = max(r.peakSets, live.Sets)
	r.peakPools = max(r.peakPools, live.Pools)
	r.peakExtinct = max(r.peakExtinct, pool.Extinct)
	return nil
}

// frameBufferKey binds pass i to views for frame f. Present targets cycle
// through the swapchain images; every other attachment has one fixed view.
func (r *Runner) frameBufferKey(f, i int, rp gpucache.RenderPassHandle) gpucache.FrameBufferKey {
	k := gpucache.FrameBufferKey{
		RenderPass: rp,
		Width:      r.w.Width,
		Height:     r.w.Height,
		Layers:     1,
	}
	base := gpucache.ImageViewHandle(1000 * (i + 1)) //nolint:gosec // G115: pass count is small
	pass := &r.passes[i]
	for s := range pass.Colors {
		a := &pass.Colors[s]
		if !a.Used() {
			continue
		}
		if a.Layout == gpucache.ImageLayoutPresent {
			k.Colors[s] = gpucache.ImageViewHandle(1 + f%r.w.SwapchainImages) //nolint:gosec // G115: small
		} else {
			k.Colors[s] = base + gpucache.ImageViewHandle(s)
		}
		if a.Resolve {
			k.Resolves[s] = base + 100 + gpucache.ImageViewHandle(s)
		}
	}
	if pass.HasDepth() {
		k.Depth = base + 999
	}
	return k
}

// setKey returns the descriptor set key numbered id. Equal ids give equal
// keys.
func (r *Runner) setKey(id uint64) gpucache.DescriptorSetKey {
	var k gpucache.DescriptorSetKey
	res := gpucache.ResourceHandle(id<<8 + 1)
	for slot, b := range r.w.Sets.Bindings {
		s := uint32(slot) //nolint:gosec // G115: bounded by MaxSetBindings
		if b.Count > 1 {
			items := make([]gpucache.ArrayElement, b.Count)
			for e := range items {
				items[e] = element(b.Type, res+gpucache.ResourceHandle(e))
			}
			k.Add(gpucache.ArrayDescriptor(s, b.Type, r.caches.InternArray(items), b.Count))
			continue
		}
		switch {
		case b.Type.IsBuffer():
			k.Add(gpucache.BufferDescriptor(s, b.Type, res, 0, 256))
		default:
			k.Add(gpucache.ImageDescriptor(s, b.Type, res, res+1, gpucache.ImageLayoutShaderReadOnly))
		}
	}
	return k
}

func element(t gpucache.BindingType, res gpucache.ResourceHandle) gpucache.ArrayElement {
	if t.IsBuffer() {
		return gpucache.BufferElement(res, 0, 256)
	}
	return gpucache.ImageElement(res, res, gpucache.ImageLayoutShaderReadOnly)
}

func (r *Runner) shutdown() {
	r.timeline.CompleteAll()
	r.caches.Destroy()
}

// Run replays w on a fresh software device.
func Run(ctx context.Context, w *Workload) (*Report, error) {
	r, err := NewRunner(w)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
