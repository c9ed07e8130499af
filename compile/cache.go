package compile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Cache memoizes compilations by source content hash. Hits return the
// same immutable Script, so concurrent callers share one artifact. An
// optional disk tier persists zstd-compressed frames across processes;
// disk entries survive restarts but lose source-derived metadata.
type Cache struct {
	mem  sync.Map // hash key -> *Script
	dir  string   // "" disables the disk tier
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	hits atomic.Int64
	miss atomic.Int64
}

// NewCache returns a memory-only cache.
func NewCache() *Cache { return &Cache{} }

// NewDiskCache returns a cache that also persists frames under dir.
func NewDiskCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Cache{dir: dir, enc: enc, dec: dec}, nil
}

// Source returns the compiled form of source, compiling on miss.
func (c *Cache) Source(source string, opts Options) (*Script, error) {
	key := cacheKey(source, opts)

	if cached, ok := c.mem.Load(key); ok {
		c.hits.Add(1)
		return cached.(*Script), nil
	}
	if script, ok := c.loadDisk(key); ok {
		c.hits.Add(1)
		c.mem.Store(key, script)
		return script, nil
	}

	c.miss.Add(1)
	script, err := Source(source, opts)
	if err != nil {
		return nil, err
	}
	// On a compile race the first stored script wins; both are
	// equivalent, so either is fine to return.
	if prev, loaded := c.mem.LoadOrStore(key, script); loaded {
		return prev.(*Script), nil
	}
	c.storeDisk(key, script)
	return script, nil
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.miss.Load()
}

func cacheKey(source string, opts Options) string {
	h := sha256.New()
	h.Write([]byte(source))
	var optBits byte
	if opts.Optimize {
		optBits |= 1
	}
	if opts.Debug {
		optBits |= 2
	}
	h.Write([]byte{optBits})
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) diskPath(key string) string {
	return filepath.Join(c.dir, key+".fzbz")
}

func (c *Cache) loadDisk(key string) (*Script, bool) {
	if c.dir == "" {
		return nil, false
	}
	compressed, err := os.ReadFile(c.diskPath(key))
	if err != nil {
		return nil, false
	}
	frame, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false
	}
	script, err := Load(frame)
	if err != nil {
		// Corrupt entry; drop it rather than keep failing.
		_ = os.Remove(c.diskPath(key))
		return nil, false
	}
	return script, true
}

func (c *Cache) storeDisk(key string, script *Script) {
	if c.dir == "" {
		return
	}
	compressed := c.enc.EncodeAll(script.bytecode, nil)
	// Unique temp name so concurrent writers of the same key never
	// clobber each other mid-write; the rename is atomic.
	tmp := c.diskPath(key) + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, c.diskPath(key))
}
