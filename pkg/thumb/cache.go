package thumb

import (
	"bytes"
	"sync/atomic"

	"github.com/blacktop/fwtrace/pkg/trace"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of decoded instructions kept per cache
const DefaultCacheSize = 64 * 1024

type cacheEntry struct {
	raw  [4]byte
	insn *trace.Instruction
}

// CachedDecoder memoizes another decoder by address. An entry is only reused
// while the bytes at its address are unchanged, so code copied to RAM between
// runs is decoded again.
//
// Returned instructions are shared between callers and must not be modified.
type CachedDecoder struct {
	dec   trace.Decoder
	cache *lru.Cache[uint32, cacheEntry]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedDecoder wraps dec with an LRU cache holding size instructions
func NewCachedDecoder(dec trace.Decoder, size int) (*CachedDecoder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[uint32, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &CachedDecoder{dec: dec, cache: c}, nil
}

// Decode implements trace.Decoder
func (d *CachedDecoder) Decode(addr uint32, code []byte) (*trace.Instruction, error) {
	if e, ok := d.cache.Get(addr); ok && e.insn.Size <= len(code) && bytes.Equal(e.raw[:e.insn.Size], code[:e.insn.Size]) {
		d.hits.Add(1)
		return e.insn, nil
	}
	d.misses.Add(1)

	insn, err := d.dec.Decode(addr, code)
	if err != nil {
		// failures are cheap to reproduce and not cached
		return nil, err
	}
	e := cacheEntry{insn: insn}
	copy(e.raw[:], code[:insn.Size])
	d.cache.Add(addr, e)

	return insn, nil
}

// Stats returns the cache hit and miss counts
func (d *CachedDecoder) Stats() (hits, misses uint64) {
	return d.hits.Load(), d.misses.Load()
}

// Purge drops every cached instruction
func (d *CachedDecoder) Purge() {
	d.cache.Purge()
}
