package recurrence

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// Expansion bounds
	DefaultHorizonMonths int // Horizon applied to unbounded rules when the caller gives none
	MaxInstances         int // Hard cap per expansion
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,

	DefaultHorizonMonths: DefaultHorizonMonths,
	MaxInstances:         DefaultMaxInstances,
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,

	DefaultHorizonMonths: DefaultHorizonMonths,
	MaxInstances:         DefaultMaxInstances,
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig) *Engine {
	var cache *ExpansionCache
	if config.CacheEnabled {
		cache = NewExpansionCache(config.CacheConfig)
	}

	return &Engine{
		cache:  cache,
		config: config,
	}
}
