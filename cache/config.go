package cache

// Config carries the page cache's tuning knobs. Constructed via Apply
// and a list of Options rather than a positional constructor parameter
// list, which grows unwieldy as tuning needs grow.
type Config struct {
	// FetchConcurrency bounds the number of worker goroutines executing
	// fetch tasks concurrently. Must be >= 1.
	FetchConcurrency int
	// CacheCapacityPages is advisory capacity fed to the eviction
	// advisor, in pages.
	CacheCapacityPages int
	// AdvisorHotPercent is the share (0..100) of advisor capacity
	// reserved for the frequency (main) segment.
	AdvisorHotPercent int
	// FullPageThreshold is the changed-slot count at or above which
	// commit writes the whole page instead of a packed delta.
	FullPageThreshold int
}

// Option configures a Config.
type Option func(*Config)

// WithFetchConcurrency overrides the worker pool size.
func WithFetchConcurrency(n int) Option {
	return func(c *Config) { c.FetchConcurrency = n }
}

// WithCacheCapacityPages overrides the advisor's page-count capacity.
func WithCacheCapacityPages(n int) Option {
	return func(c *Config) { c.CacheCapacityPages = n }
}

// WithAdvisorHotPercent overrides the advisor's hot-segment share.
func WithAdvisorHotPercent(p int) Option {
	return func(c *Config) { c.AdvisorHotPercent = p }
}

// WithFullPageThreshold overrides the full-page write threshold.
func WithFullPageThreshold(n int) Option {
	return func(c *Config) { c.FullPageThreshold = n }
}

// DefaultConfig returns the cache's default tuning.
func DefaultConfig() Config {
	return Config{
		FetchConcurrency:   1,
		CacheCapacityPages: 16384,
		AdvisorHotPercent:  20,
		FullPageThreshold:  32,
	}
}

// Apply folds options onto a copy of DefaultConfig, clamping values the
// cache requires to be sane.
func Apply(options ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 1
	}
	if cfg.FullPageThreshold < 1 {
		cfg.FullPageThreshold = 1
	}
	if cfg.AdvisorHotPercent < 0 {
		cfg.AdvisorHotPercent = 0
	}
	if cfg.AdvisorHotPercent > 100 {
		cfg.AdvisorHotPercent = 100
	}
	return cfg
}
