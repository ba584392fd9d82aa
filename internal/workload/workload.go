// Package workload describes synthetic frame workloads and replays them
// against the software device.
//
// A workload is a YAML document:
//
//	name: forward
//	frames: 240
//	frames_in_flight: 2
//	prune_every: 1
//	swapchain_images: 3
//	width: 1280
//	height: 720
//	passes:
//	  - name: main
//	    colors:
//	      - {format: bgra8unorm, load: clear, store: store, layout: Present}
//	    depth: {format: depth24plus-stencil8, load: clear, store: discard}
//	sets:
//	  bindings:
//	    - {type: UniformBuffer, count: 1}
//	    - {type: CombinedImageSampler, count: 1}
//	  per_frame: 64
//	  working_set: 48
//	cache:
//	  prune_delay: 3
//	  pool: {max_sets: 32}
package workload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gogpu/gputypes"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/gpucache"
)

// Workload is a frame workload.
type Workload struct {
	Name            string    `yaml:"name"`
	Frames          int       `yaml:"frames"`
	FramesInFlight  int       `yaml:"frames_in_flight"`
	PruneEvery      int       `yaml:"prune_every"`
	SwapchainImages int       `yaml:"swapchain_images"`
	Width           uint32    `yaml:"width"`
	Height          uint32    `yaml:"height"`
	Passes          []Pass    `yaml:"passes"`
	Sets            Sets      `yaml:"sets"`
	Cache           yaml.Node `yaml:"cache"`

	cache *gpucache.Config
}

// Pass is one render pass drawn every frame.
type Pass struct {
	Name    string       `yaml:"name"`
	Colors  []Attachment `yaml:"colors"`
	Depth   *Attachment  `yaml:"depth"`
	Samples uint8        `yaml:"samples"`
	Dynamic bool         `yaml:"dynamic"`
}

// Attachment describes one attachment of a Pass.
type Attachment struct {
	Format  string               `yaml:"format"`
	Load    string               `yaml:"load"`
	Store   string               `yaml:"store"`
	Layout  gpucache.ImageLayout `yaml:"layout"`
	Resolve bool                 `yaml:"resolve"`
}

// Sets describes the descriptor sets requested every frame.
//
// Each frame requests PerFrame sets. The first WorkingSet of them reuse the
// same keys every frame; the rest are keys never seen before.
type Sets struct {
	Bindings   []gpucache.LayoutBinding `yaml:"bindings"`
	PerFrame   int                      `yaml:"per_frame"`
	WorkingSet int                      `yaml:"working_set"`
}

var formats = map[string]gputypes.TextureFormat{
	"bgra8unorm":           gputypes.TextureFormatBGRA8Unorm,
	"rgba8unorm":           gputypes.TextureFormatRGBA8Unorm,
	"depth24plus-stencil8": gputypes.TextureFormatDepth24PlusStencil8,
}

var loadOps = map[string]gputypes.LoadOp{
	"clear": gputypes.LoadOpClear,
	"load":  gputypes.LoadOpLoad,
}

var storeOps = map[string]gputypes.StoreOp{
	"store":   gputypes.StoreOpStore,
	"discard": gputypes.StoreOpDiscard,
}

// Parse decodes and validates a workload.
func Parse(data []byte) (*Workload, error) {
	w := &Workload{
		FramesInFlight:  2,
		PruneEvery:      1,
		SwapchainImages: 3,
		Width:           1280,
		Height:          720,
	}
	if err := yaml.Unmarshal(data, w); err != nil {
		return nil, fmt.Errorf("workload: parse: %w", err)
	}

	// The cache section is re-encoded so gpucache.ParseConfig applies its
	// defaults and validation.
	raw := []byte{}
	if !w.Cache.IsZero() {
		var err error
		if raw, err = yaml.Marshal(&w.Cache); err != nil {
			return nil, fmt.Errorf("workload: cache section: %w", err)
		}
	}
	cfg, err := gpucache.ParseConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("workload: %w", err)
	}
	w.cache = cfg

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Load reads and parses the workload file at path.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("workload: read: %w", err)
	}
	return Parse(data)
}

// Config returns the cache configuration of the workload.
func (w *Workload) Config() *gpucache.Config {
	if w.cache == nil {
		return gpucache.DefaultConfig()
	}
	return w.cache
}

// Validate checks that the workload can be replayed.
func (w *Workload) Validate() error {
	var errs []error
	if w.Frames <= 0 {
		errs = append(errs, errors.New("frames must be positive"))
	}
	if w.FramesInFlight <= 0 {
		errs = append(errs, errors.New("frames_in_flight must be positive"))
	}
	if w.PruneEvery <= 0 {
		errs = append(errs, errors.New("prune_every must be positive"))
	}
	if w.SwapchainImages <= 0 {
		errs = append(errs, errors.New("swapchain_images must be positive"))
	}
	if w.Width == 0 || w.Height == 0 {
		errs = append(errs, errors.New("width and height must be positive"))
	}
	for i := range w.Passes {
		if _, err := w.Passes[i].Key(); err != nil {
			errs = append(errs, fmt.Errorf("pass %d (%s): %w", i, w.Passes[i].Name, err))
		}
	}
	if len(w.Sets.Bindings) > gpucache.MaxSetBindings {
		errs = append(errs, fmt.Errorf("sets: %d bindings exceeds %d", len(w.Sets.Bindings), gpucache.MaxSetBindings))
	}
	for i, b := range w.Sets.Bindings {
		if b.Type == gpucache.BindingNone || b.Count == 0 {
			errs = append(errs, fmt.Errorf("sets: binding %d needs a type and a count", i))
		}
		if b.Type == gpucache.BindingAccelerationStructure {
			errs = append(errs, fmt.Errorf("sets: binding %d: acceleration structures are not simulated", i))
		}
	}
	if w.Sets.PerFrame < 0 || w.Sets.WorkingSet < 0 || w.Sets.WorkingSet > w.Sets.PerFrame {
		errs = append(errs, errors.New("sets: need 0 <= working_set <= per_frame"))
	}
	if w.Sets.PerFrame > 0 && len(w.Sets.Bindings) == 0 {
		errs = append(errs, errors.New("sets: per_frame set without bindings"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("workload %q: %w", w.Name, err)
	}
	return nil
}

// Key returns the render pass key of p.
func (p *Pass) Key() (gpucache.RenderPassKey, error) {
	var k gpucache.RenderPassKey
	if len(p.Colors) > gpucache.MaxColorAttachments {
		return k, fmt.Errorf("%d color attachments exceeds %d", len(p.Colors), gpucache.MaxColorAttachments)
	}
	if len(p.Colors) == 0 && p.Depth == nil {
		return k, errors.New("no attachments")
	}
	for i := range p.Colors {
		a, err := p.Colors[i].key()
		if err != nil {
			return k, fmt.Errorf("color %d: %w", i, err)
		}
		k.Colors[i] = a
	}
	if p.Depth != nil {
		a, err := p.Depth.key()
		if err != nil {
			return k, fmt.Errorf("depth: %w", err)
		}
		k.Depth = a
	}
	k.Samples = p.Samples
	k.Dynamic = p.Dynamic
	return k, nil
}

func (a *Attachment) key() (gpucache.AttachmentKey, error) {
	format, ok := formats[a.Format]
	if !ok {
		return gpucache.AttachmentKey{}, fmt.Errorf("unknown format %q", a.Format)
	}
	load, ok := loadOps[a.Load]
	if !ok {
		return gpucache.AttachmentKey{}, fmt.Errorf("unknown load op %q", a.Load)
	}
	store, ok := storeOps[a.Store]
	if !ok {
		return gpucache.AttachmentKey{}, fmt.Errorf("unknown store op %q", a.Store)
	}
	return gpucache.AttachmentKey{
		Format:  format,
		Load:    load,
		Store:   store,
		Layout:  a.Layout,
		Resolve: a.Resolve,
	}, nil
}

// SetLayoutKey returns the layout key of the per-frame descriptor sets.
func (s *Sets) SetLayoutKey() gpucache.SetLayoutKey {
	var k gpucache.SetLayoutKey
	k.Stages = gpucache.StageVertex | gpucache.StageFragment
	for i, b := range s.Bindings {
		k.Bind(uint32(i), b.Type, b.Count) //nolint:gosec // G115: bounded by MaxSetBindings
	}
	return k
}
