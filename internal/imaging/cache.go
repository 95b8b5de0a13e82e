package imaging

import (
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/blake3"
)

// Kind selects the renderer.
type Kind int

const (
	KindColor Kind = iota
	KindMono
)

type cacheKey struct {
	digest string
	kind   Kind
	cols   int
	rows   int
}

// rendering is a cached outcome. Failures are kept too so an unreadable
// payload is decoded once, not on every redraw.
type rendering struct {
	text string
	err  error
}

// Cache memoises rendered payloads across redraws. Entries are keyed by the
// BLAKE3 digest of the payload plus the target size.
type Cache struct {
	lru *lru.Cache[cacheKey, rendering]
}

// NewCache returns an LRU cache holding at most limit renderings.
func NewCache(limit int) *Cache {
	if limit < 1 {
		limit = 1
	}
	l, err := lru.New[cacheKey, rendering](limit)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &Cache{lru: l}
}

// Digest returns the hex BLAKE3-256 digest of payload.
func Digest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Render returns payload drawn into cols×rows cells. For KindMono rows is
// ignored.
func (c *Cache) Render(payload []byte, kind Kind, cols, rows int) (string, error) {
	key := cacheKey{digest: Digest(payload), kind: kind, cols: cols, rows: rows}
	if r, ok := c.lru.Get(key); ok {
		return r.text, r.err
	}

	r := render(payload, kind, cols, rows)
	c.lru.Add(key, r)
	return r.text, r.err
}

func render(payload []byte, kind Kind, cols, rows int) rendering {
	img, _, err := Decode(payload)
	if err != nil {
		return rendering{err: err}
	}
	switch kind {
	case KindColor:
		return rendering{text: Render(img, cols, rows)}
	case KindMono:
		return rendering{text: RenderMono(img, cols)}
	default:
		return rendering{err: fmt.Errorf("imaging: unknown kind %d", kind)}
	}
}

// Len returns the number of cached renderings.
func (c *Cache) Len() int {
	return c.lru.Len()
}
