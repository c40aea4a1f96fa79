package similarity

import (
	"fmt"
	"sync"

	"vast/internal/frames"
)

// Comparator scores frame pairs for one detection run. It caches prepared
// features by frame index and is safe for concurrent use. A Comparator must
// not be shared between runs over different frame sequences.
type Comparator struct {
	strategy Strategy

	mu    sync.Mutex
	cache map[int]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	feat features
	err  error
	// uses counts the remaining comparisons expected to need this entry.
	uses int
}

// usesPerFrame is the number of adjacent pairs an interior frame belongs to.
const usesPerFrame = 2

// NewComparator validates the strategy and returns an empty comparator.
func NewComparator(s Strategy) (*Comparator, error) {
	switch st := s.(type) {
	case Structural:
		if st.AnalysisWidth < 0 {
			return nil, fmt.Errorf("structural: analysis width must not be negative")
		}
	case Embedding:
		if st.Embedder == nil {
			return nil, ErrMissingEmbedder
		}
	case nil:
		return nil, fmt.Errorf("strategy is required")
	default:
		return nil, fmt.Errorf("unsupported strategy %T", s)
	}
	return &Comparator{strategy: s, cache: make(map[int]*cacheEntry)}, nil
}

// Name returns the strategy identifier.
func (c *Comparator) Name() string {
	return Name(c.strategy)
}

// Strategy returns the strategy the comparator applies.
func (c *Comparator) Strategy() Strategy {
	return c.strategy
}

// Compare returns the similarity of a and b in [0, 1].
func (c *Comparator) Compare(a, b frames.Frame) (float64, error) {
	fa, err := c.features(a)
	if err != nil {
		return 0, err
	}
	fb, err := c.features(b)
	if err != nil {
		return 0, err
	}
	s, err := score(fa, fb, c.strategy)
	c.release(a.Index)
	c.release(b.Index)
	return s, err
}

func (c *Comparator) features(f frames.Frame) (features, error) {
	c.mu.Lock()
	entry, ok := c.cache[f.Index]
	if !ok {
		entry = &cacheEntry{uses: usesPerFrame}
		c.cache[f.Index] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.feat, entry.err = prepare(f, c.strategy)
	})
	return entry.feat, entry.err
}

// release drops a cached entry once both of its adjacent comparisons have
// used it. Entries for the first and last frame stay until the run ends.
func (c *Comparator) release(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[index]
	if !ok {
		return
	}
	entry.uses--
	if entry.uses <= 0 {
		delete(c.cache, index)
	}
}

// cached reports the number of live cache entries.
func (c *Comparator) cached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
