package workload

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpucache"
)

const forward = `
name: forward
frames: 40
frames_in_flight: 2
swapchain_images: 3
width: 640
height: 480
passes:
  - name: main
    colors:
      - {format: bgra8unorm, load: clear, store: store, layout: Present}
    depth: {format: depth24plus-stencil8, load: clear, store: discard}
  - name: shadow
    depth: {format: depth24plus-stencil8, load: clear, store: store}
sets:
  bindings:
    - {type: UniformBuffer, count: 1}
    - {type: CombinedImageSampler, count: 1}
    - {type: SampledImage, count: 4}
  per_frame: 12
  working_set: 4
cache:
  prune_delay: 2
  pool: {max_sets: 8}
`

func mustParse(t *testing.T, src string) *Workload {
	t.Helper()
	w, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return w
}

func TestParse(t *testing.T) {
	w := mustParse(t, forward)

	if w.Name != "forward" || w.Frames != 40 || len(w.Passes) != 2 {
		t.Errorf("parsed %+v", w)
	}
	if w.PruneEvery != 1 {
		t.Errorf("PruneEvery = %d, want default 1", w.PruneEvery)
	}
	cfg := w.Config()
	if cfg.PruneDelay != 2 || cfg.Pool.MaxSets != 8 {
		t.Errorf("cache config = %+v", cfg)
	}
	if len(cfg.Pool.Sizes) == 0 {
		t.Error("pool sizes lost their defaults")
	}

	k, err := w.Passes[0].Key()
	if err != nil {
		t.Fatal(err)
	}
	if k.Colors[0].Format != gputypes.TextureFormatBGRA8Unorm || k.Colors[0].Layout != gpucache.ImageLayoutPresent {
		t.Errorf("color 0 = %+v", k.Colors[0])
	}
	if !k.HasDepth() {
		t.Error("main pass lost its depth attachment")
	}

	lk := w.Sets.SetLayoutKey()
	if lk.Bindings[2] != (gpucache.LayoutBinding{Type: gpucache.BindingSampledImage, Count: 4}) {
		t.Errorf("binding 2 = %+v", lk.Bindings[2])
	}
}

func TestParseWithoutCacheSection(t *testing.T) {
	w := mustParse(t, "name: bare\nframes: 1\n")
	if got, want := w.Config().Pool.MaxSets, uint32(gpucache.DefaultPoolMaxSets); got != want {
		t.Errorf("MaxSets = %d, want %d", got, want)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no frames", "name: x\n", "frames must be positive"},
		{"bad format", "frames: 1\npasses: [{colors: [{format: rgb565, load: clear, store: store}]}]\n", "unknown format"},
		{"bad load", "frames: 1\npasses: [{colors: [{format: rgba8unorm, load: keep, store: store}]}]\n", "unknown load op"},
		{"empty pass", "frames: 1\npasses: [{name: nothing}]\n", "no attachments"},
		{"working set", "frames: 1\nsets: {bindings: [{type: Sampler, count: 1}], per_frame: 1, working_set: 2}\n", "working_set"},
		{"no bindings", "frames: 1\nsets: {per_frame: 3}\n", "without bindings"},
		{"bad layout", "frames: 1\npasses: [{colors: [{format: rgba8unorm, load: clear, store: store, layout: Sideways}]}]\n", "unknown image layout"},
		{"bad cache", "frames: 1\ncache: {pool: {max_sets: 0}}\n", "max_sets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if err == nil {
				t.Fatal("Parse() succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	w := mustParse(t, forward)
	rep, err := Run(context.Background(), w)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rep.Frames != 40 {
		t.Errorf("Frames = %d, want 40", rep.Frames)
	}
	if rep.Caches.Pool.Growths == 0 {
		t.Error("expected pool growth with 12 sets per frame and 8 per pool")
	}
	if rep.Caches.Descriptors.Hits == 0 {
		t.Error("working set produced no descriptor hits")
	}
	if rep.Caches.RenderPasses.Misses != 2 {
		t.Errorf("render pass misses = %d, want 2", rep.Caches.RenderPasses.Misses)
	}
	if rep.Calls.Invalid != 0 {
		t.Errorf("Calls.Invalid = %d", rep.Calls.Invalid)
	}
	if rep.Leaked.Total() != 0 {
		t.Errorf("Leaked = %+v", rep.Leaked)
	}
	if rep.PeakPools < 2 {
		t.Errorf("PeakPools = %d, want at least 2", rep.PeakPools)
	}
}

func TestRunCancelled(t *testing.T) {
	w := mustParse(t, forward)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run(ctx, w); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestReportEncode(t *testing.T) {
	rep, err := Run(context.Background(), mustParse(t, forward))
	if err != nil {
		t.Fatal(err)
	}

	var text bytes.Buffer
	if err := rep.Encode(&text, "text"); err != nil {
		t.Fatalf("Encode(text) error = %v", err)
	}
	if !strings.HasPrefix(text.String(), "workload forward: 40 frames") {
		t.Errorf("text report = %q", text.String())
	}

	for _, format := range []string{"yaml", "json", "msgpack", "cbor"} {
		var buf bytes.Buffer
		if err := rep.Encode(&buf, format); err != nil {
			t.Fatalf("Encode(%s) error = %v", format, err)
		}
		got, err := Decode(buf.Bytes(), format)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", format, err)
		}
		if got.Caches.Pool.Growths != rep.Caches.Pool.Growths || got.Calls != rep.Calls {
			t.Errorf("%s report changed: %+v", format, got)
		}
	}

	if err := rep.Encode(&bytes.Buffer{}, "xml"); err == nil {
		t.Error("Encode(xml) succeeded")
	}
}
