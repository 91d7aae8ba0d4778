package segment

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes another Segmenter by input text. Callers get their own copy
// of each result.
type Cached struct {
	next  Segmenter
	cache *lru.Cache[string, []BreathGroup]
}

func NewCached(next Segmenter, size int) (*Cached, error) {
	c, err := lru.New[string, []BreathGroup](size)
	if err != nil {
		return nil, fmt.Errorf("create segment cache: %w", err)
	}
	return &Cached{next: next, cache: c}, nil
}

func (c *Cached) Segment(ctx context.Context, text string) ([]BreathGroup, error) {
	if groups, ok := c.cache.Get(text); ok {
		return cloneGroups(groups), nil
	}
	groups, err := c.next.Segment(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, cloneGroups(groups))
	return groups, nil
}

// Len reports the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }
