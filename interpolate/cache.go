package interpolate

// Cache maps template strings to their compiled form. It is populated by a
// CacheBuilder and read-only afterwards, so lookups need no locking.
type Cache struct {
	compiled map[string]*Interpolator
}

// CacheBuilder accumulates compiled templates for a Cache.
type CacheBuilder struct {
	compiled map[string]*Interpolator
}

// NewCacheBuilder returns an empty builder.
func NewCacheBuilder() *CacheBuilder {
	return &CacheBuilder{compiled: make(map[string]*Interpolator)}
}

// Add compiles template unless an identical template was already added.
func (b *CacheBuilder) Add(template string) (*Interpolator, error) {
	if in, ok := b.compiled[template]; ok {
		return in, nil
	}
	in, err := Compile(template)
	if err != nil {
		return nil, err
	}
	b.compiled[template] = in
	return in, nil
}

// Build freezes the builder into a Cache. The builder must not be used
// afterwards.
func (b *CacheBuilder) Build() *Cache {
	c := &Cache{compiled: b.compiled}
	b.compiled = nil
	return c
}

// NewCache compiles templates into a ready Cache.
func NewCache(templates ...string) (*Cache, error) {
	b := NewCacheBuilder()
	for _, t := range templates {
		if _, err := b.Add(t); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// Len returns the number of distinct cached templates.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.compiled)
}

// Get returns the compiled form of template if it is cached.
func (c *Cache) Get(template string) (*Interpolator, bool) {
	if c == nil {
		return nil, false
	}
	in, ok := c.compiled[template]
	return in, ok
}

// Lookup returns the cached interpolator for template, compiling a
// transient one on a miss. Misses are not stored.
func (c *Cache) Lookup(template string) (*Interpolator, error) {
	if in, ok := c.Get(template); ok {
		return in, nil
	}
	return Compile(template)
}

// Interpolate expands template against params using the cache.
func (c *Cache) Interpolate(template string, params map[string]string) (string, error) {
	in, err := c.Lookup(template)
	if err != nil {
		return "", err
	}
	return in.Interpolate(params)
}
