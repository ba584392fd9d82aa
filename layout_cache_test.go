package gpucache

import (
	"errors"
	"testing"
)

func TestGetSetLayoutDeterministic(t *testing.T) {
	d := newFakeDevice(t)
	c := NewLayoutCache(d)

	var a, b SetLayoutKey
	a.Stages = StageFragment
	a.Bind(0, BindingUniformBuffer, 1).Bind(2, BindingCombinedImageSampler, 4)
	b = a

	h1, err := c.GetSetLayout(a)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := c.GetSetLayout(b)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("equal keys returned %d and %d", h1, h2)
	}
	if d.creates != 1 {
		t.Errorf("creates = %d, want 1", d.creates)
	}

	b.Stages |= StageVertex
	h3, err := c.GetSetLayout(b)
	if err != nil {
		t.Fatal(err)
	}
	if h3 == h1 {
		t.Error("keys differing in stages shared a layout")
	}

	if s := c.Stats(); s.Hits != 1 || s.Misses != 2 || s.Len != 2 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestSetLayoutDescriptor(t *testing.T) {
	var k SetLayoutKey
	k.Stages = StageCompute
	k.Bind(1, BindingStorageBuffer, 2)
	k.Bind(5, BindingSampledImage, UnboundedCount+100)

	desc, err := setLayoutDescriptor(&k)
	if err != nil {
		t.Fatal(err)
	}
	if len(desc.Bindings) != 2 {
		t.Fatalf("bindings = %d, want 2", len(desc.Bindings))
	}
	if b := desc.Bindings[0]; b.Slot != 1 || b.Count != 2 || b.VariableCount || b.Stages != StageCompute {
		t.Errorf("binding 0 = %+v", b)
	}
	b := desc.Bindings[1]
	if b.Slot != 5 || b.Count != UnboundedCount || !b.VariableCount || !b.PartiallyBound {
		t.Errorf("unbounded binding = %+v, want count clamped to %d and variable", b, UnboundedCount)
	}
}

func TestSetLayoutRejectsUntypedSlot(t *testing.T) {
	c := NewLayoutCache(newFakeDevice(t))
	var k SetLayoutKey
	k.Bind(0, BindingNone, 1)
	if _, err := c.GetSetLayout(k); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("GetSetLayout() error = %v, want ErrInvalidKey", err)
	}
}

func TestGetPipelineLayoutSharesSetLayouts(t *testing.T) {
	d := newFakeDevice(t)
	c := NewLayoutCache(d)

	var s0, s1 SetLayoutKey
	s0.Bind(0, BindingUniformBuffer, 1)
	s1.Bind(0, BindingSampledImage, 1)

	set0, err := c.GetSetLayout(s0)
	if err != nil {
		t.Fatal(err)
	}

	key := PipelineLayoutKey{SetCount: 2}
	key.Sets[0] = s0
	key.Sets[1] = s1
	key.PushConstants = PushConstantRange{Stages: StageVertex, Size: 64}

	pl, err := c.GetPipelineLayout(key)
	if err != nil {
		t.Fatal(err)
	}
	desc := d.pipelineLayouts[pl]
	if len(desc.SetLayouts) != 2 || desc.SetLayouts[0] != set0 {
		t.Errorf("set layouts = %v, want first to be %d", desc.SetLayouts, set0)
	}
	if len(desc.PushConstants) != 1 || desc.PushConstants[0].Size != 64 {
		t.Errorf("push constants = %+v", desc.PushConstants)
	}

	again, err := c.GetPipelineLayout(key)
	if err != nil {
		t.Fatal(err)
	}
	if again != pl {
		t.Error("pipeline layout not deduplicated")
	}
	if len(d.setLayouts) != 2 || len(d.pipelineLayouts) != 1 {
		t.Errorf("device has %d set layouts and %d pipeline layouts, want 2 and 1",
			len(d.setLayouts), len(d.pipelineLayouts))
	}
}

func TestGetPipelineLayoutRejectsSetsBeyondCount(t *testing.T) {
	c := NewLayoutCache(newFakeDevice(t))
	key := PipelineLayoutKey{SetCount: 1}
	key.Sets[2].Bind(0, BindingSampler, 1)
	if _, err := c.GetPipelineLayout(key); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("GetPipelineLayout() error = %v, want ErrInvalidKey", err)
	}
}

func TestLayoutCreateFailureIsFatal(t *testing.T) {
	d := newFakeDevice(t)
	d.createErr = errors.New("out of device memory")
	c := NewLayoutCache(d)

	var k SetLayoutKey
	k.Bind(0, BindingUniformBuffer, 1)
	if _, err := c.GetSetLayout(k); !errors.Is(err, ErrCreateFailed) {
		t.Fatalf("GetSetLayout() error = %v, want ErrCreateFailed", err)
	}
	if c.Stats().Len != 0 {
		t.Error("failed lookup left an entry behind")
	}

	d.createErr = nil
	if _, err := c.GetSetLayout(k); err != nil {
		t.Errorf("GetSetLayout() after recovery error = %v", err)
	}
}

func TestLayoutCacheDestroy(t *testing.T) {
	d := newFakeDevice(t)
	c := NewLayoutCache(d)

	var s SetLayoutKey
	s.Bind(0, BindingUniformBuffer, 1)
	key := PipelineLayoutKey{SetCount: 1}
	key.Sets[0] = s
	if _, err := c.GetPipelineLayout(key); err != nil {
		t.Fatal(err)
	}

	c.Destroy()
	if n := d.live(); n != 0 {
		t.Errorf("live objects after Destroy = %d", n)
	}
	if _, err := c.GetSetLayout(s); !errors.Is(err, ErrClosed) {
		t.Errorf("GetSetLayout() after Destroy error = %v, want ErrClosed", err)
	}
	c.Destroy()
}
