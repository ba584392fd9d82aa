package gpucache

// Option configures a cache during creation.
//
// Example:
//
//	caches := gpucache.NewCaches(device,
//	    gpucache.WithPruneDelay(3),
//	    gpucache.WithPoolCapacity(512),
//	)
type Option func(*options)

// Defaults used when no option overrides them.
const (
	// DefaultPruneDelay is the number of prune sweeps an entry may go unused
	// before it becomes eligible for eviction.
	DefaultPruneDelay = 4

	// DefaultPoolMaxSets is the set capacity of the first descriptor pool.
	DefaultPoolMaxSets = 256

	// DefaultExtinctPoolWarn is the retired-pool backlog above which pool
	// growth logs a warning.
	DefaultExtinctPoolWarn = 4
)

// DefaultPoolSizes returns the per-type descriptor capacity of the first
// descriptor pool.
func DefaultPoolSizes() []PoolSize {
	return []PoolSize{
		{Type: BindingUniformBuffer, Count: 256},
		{Type: BindingStorageBuffer, Count: 256},
		{Type: BindingUniformBufferDynamic, Count: 64},
		{Type: BindingStorageBufferDynamic, Count: 64},
		{Type: BindingSampledImage, Count: 256},
		{Type: BindingCombinedImageSampler, Count: 512},
		{Type: BindingStorageImage, Count: 64},
		{Type: BindingSampler, Count: 128},
		{Type: BindingAccelerationStructure, Count: 16},
	}
}

// options holds optional cache configuration.
type options struct {
	pruneDelay  uint64
	poolMaxSets uint32
	poolSizes   []PoolSize
	extinctWarn int
}

// defaultOptions returns the default cache options.
func defaultOptions() options {
	return options{
		pruneDelay:  DefaultPruneDelay,
		poolMaxSets: DefaultPoolMaxSets,
		poolSizes:   DefaultPoolSizes(),
		extinctWarn: DefaultExtinctPoolWarn,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPruneDelay sets how many prune sweeps an entry may go unused before
// it can be evicted. Zero evicts at the first sweep after last use.
func WithPruneDelay(ticks uint64) Option {
	return func(o *options) {
		o.pruneDelay = ticks
	}
}

// WithPoolCapacity sets the set capacity of the first descriptor pool.
// Grown pools are multiples of it. Values of zero are ignored.
func WithPoolCapacity(maxSets uint32) Option {
	return func(o *options) {
		if maxSets > 0 {
			o.poolMaxSets = maxSets
		}
	}
}

// WithPoolSizes sets the per-type descriptor capacity of the first
// descriptor pool. Grown pools scale every size by the same factor.
// An empty slice is ignored.
func WithPoolSizes(sizes []PoolSize) Option {
	return func(o *options) {
		if len(sizes) > 0 {
			o.poolSizes = append([]PoolSize(nil), sizes...)
		}
	}
}

// WithExtinctPoolWarning sets the retired-pool backlog above which pool
// growth logs a warning. Zero disables the warning.
func WithExtinctPoolWarning(n int) Option {
	return func(o *options) {
		o.extinctWarn = n
	}
}
