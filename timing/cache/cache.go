// Package cache provides the instruction and data caches using Akita cache
// components. Both caches share one implementation: a set-associative line
// store with LRU replacement that escalates misses to the system bus.
package cache

import (
	"fmt"

	"github.com/go-logr/logr"
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/softcore/emu"
	"github.com/sarchlab/softcore/faults"
	"github.com/sarchlab/softcore/timing/bus"
)

// Config holds cache geometry.
type Config struct {
	// Size in bytes
	Size int `json:"size" yaml:"size"`
	// Associativity (number of ways)
	Associativity int `json:"associativity" yaml:"associativity"`
	// BlockSize in bytes (cache line size)
	BlockSize int `json:"block_size" yaml:"block_size"`
}

// DefaultICacheConfig returns the default instruction cache geometry:
// 4KiB, 2-way, 16B lines.
func DefaultICacheConfig() Config {
	return Config{
		Size:          4 * 1024,
		Associativity: 2,
		BlockSize:     16,
	}
}

// DefaultDCacheConfig returns the default data cache geometry: 4KiB,
// 4-way, 16B lines.
func DefaultDCacheConfig() Config {
	return Config{
		Size:          4 * 1024,
		Associativity: 4,
		BlockSize:     16,
	}
}

// NumSets returns the number of sets.
func (c Config) NumSets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// Validate checks that the geometry describes a real cache.
func (c Config) Validate() error {
	if c.BlockSize < 4 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block_size %d must be a power of two >= 4", c.BlockSize)
	}
	if c.Associativity < 1 {
		return fmt.Errorf("associativity %d must be >= 1", c.Associativity)
	}
	if c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("size %d must be a positive multiple of associativity*block_size", c.Size)
	}
	return nil
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Done is false when the access must be retried next cycle.
	Done bool
	// Hit indicates whether the line was present when the access completed
	// without waiting for a fill.
	Hit bool
	// Data is the word read (for reads).
	Data uint32
	// Fault is set when the bus rejected the access.
	Fault faults.BusCode
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
	Fills      uint64
	Uncached   uint64
}

// HitRate returns hits over completed cacheable accesses.
func (s Statistics) HitRate() float64 {
	cached := s.Reads + s.Writes - s.Uncached
	if cached == 0 {
		return 0
	}
	return float64(s.Hits) / float64(cached)
}

// Option configures a Cache.
type Option func(*Cache)

// WithReadOnly makes the cache reject writes. Used for the instruction cache.
func WithReadOnly() Option {
	return func(c *Cache) {
		c.readOnly = true
	}
}

// WithLogger sets the logger used for evictions and fill faults.
func WithLogger(logger logr.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// Cache represents a single cache using Akita cache components.
type Cache struct {
	// Configuration
	config   Config
	readOnly bool
	logger   logr.Logger

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	// Data storage - indexed by (setID * associativity + wayID)
	lines [][]uint32

	// Bus side
	port    *bus.Port
	addrMap *bus.AddressMap

	miss     *miss
	uncached *uncachedAccess
	failed   *failedFill

	// filled remembers the line installed by the last fill so the access
	// that waited for it is not reported as a hit.
	filled    uint32
	hasFilled bool

	// Statistics
	stats Statistics
}

// New creates a cache that fetches through port. The address map decides
// which addresses are cacheable.
func New(config Config, port *bus.Port, addrMap *bus.AddressMap, opts ...Option) *Cache {
	if err := config.Validate(); err != nil {
		panic("cache: " + err.Error())
	}

	numSets := config.NumSets()
	totalBlocks := numSets * config.Associativity
	wordsPerLine := config.BlockSize / 4

	lines := make([][]uint32, totalBlocks)
	for i := range lines {
		lines[i] = make([]uint32, wordsPerLine)
	}

	c := &Cache{
		config: config,
		logger: logr.Discard(),
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		lines:   lines,
		port:    port,
		addrMap: addrMap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// Busy reports whether a miss or an uncached access is in flight.
func (c *Cache) Busy() bool {
	return c.miss != nil || c.uncached != nil
}

// blockIndex computes the index into lines for a block.
func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint32) uint32 {
	return addr &^ uint32(c.config.BlockSize-1)
}

func (c *Cache) wordIndex(addr uint32) int {
	return int(addr&uint32(c.config.BlockSize-1)) / 4
}

// lookup returns the valid, unlocked block holding addr.
func (c *Cache) lookup(addr uint32) *akitacache.Block {
	block := c.directory.Lookup(0, uint64(c.blockAddr(addr)))
	if block == nil || !block.IsValid || block.IsLocked {
		return nil
	}
	return block
}

// Tick advances an outstanding miss. The owner calls it once per cycle
// before issuing accesses.
func (c *Cache) Tick() {
	c.progress()
}

// Read reads the word containing addr. mask selects the byte lanes that
// are needed; it matters only for uncached accesses.
func (c *Cache) Read(addr uint32, mask uint8) AccessResult {
	addr &^= 3

	if !c.addrMap.Cacheable(addr) {
		return c.accessUncached(bus.Read, addr, 0, mask)
	}

	if block := c.lookup(addr); block != nil {
		c.directory.Visit(block)
		c.stats.Reads++
		hit := c.consumeFilled(addr)
		if hit {
			c.stats.Hits++
		}
		return AccessResult{
			Done: true,
			Hit:  hit,
			Data: c.lines[c.blockIndex(block)][c.wordIndex(addr)],
		}
	}

	if code, ok := c.consumeFailed(addr); ok {
		c.stats.Reads++
		return AccessResult{Done: true, Fault: code}
	}

	c.startMiss(addr)
	return AccessResult{}
}

// Write writes the lanes of data selected by mask into the word containing
// addr. The policy is write-back with write-allocate.
func (c *Cache) Write(addr uint32, data uint32, mask uint8) AccessResult {
	if c.readOnly {
		panic("cache: write to read-only cache")
	}
	addr &^= 3

	if !c.addrMap.Cacheable(addr) {
		return c.accessUncached(bus.Write, addr, data, mask)
	}

	if block := c.lookup(addr); block != nil {
		c.directory.Visit(block)
		line := c.lines[c.blockIndex(block)]
		i := c.wordIndex(addr)
		line[i] = emu.MergeLanes(line[i], data, mask)
		block.IsDirty = true

		c.stats.Writes++
		hit := c.consumeFilled(addr)
		if hit {
			c.stats.Hits++
		}
		return AccessResult{Done: true, Hit: hit}
	}

	if code, ok := c.consumeFailed(addr); ok {
		c.stats.Writes++
		return AccessResult{Done: true, Fault: code}
	}

	c.startMiss(addr)
	return AccessResult{}
}

func (c *Cache) consumeFilled(addr uint32) bool {
	if c.hasFilled && c.filled == c.blockAddr(addr) {
		c.hasFilled = false
		return false
	}
	return true
}

func (c *Cache) consumeFailed(addr uint32) (faults.BusCode, bool) {
	if c.failed == nil || c.failed.blockAddr != c.blockAddr(addr) {
		return faults.BusOK, false
	}
	code := c.failed.code
	c.failed = nil
	return code, true
}

// Contains reports whether the line holding addr is present.
func (c *Cache) Contains(addr uint32) bool {
	return c.lookup(addr) != nil
}

// IsDirty reports whether the line holding addr is present and dirty.
func (c *Cache) IsDirty(addr uint32) bool {
	block := c.lookup(addr)
	return block != nil && block.IsDirty
}

// Peek returns the cached copy of the word at addr without touching LRU
// state or statistics.
func (c *Cache) Peek(addr uint32) (uint32, bool) {
	block := c.lookup(addr)
	if block == nil {
		return 0, false
	}
	return c.lines[c.blockIndex(block)][c.wordIndex(addr)], true
}

// Invalidate marks a cache line as invalid without writing it back.
func (c *Cache) Invalidate(addr uint32) {
	if block := c.lookup(addr); block != nil {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush writes back all dirty lines through the address map's debug path
// and invalidates every line. It takes no simulated time.
func (c *Cache) Flush() error {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsLocked {
				continue
			}
			if block.IsValid && block.IsDirty {
				if err := c.pokeLine(block); err != nil {
					return err
				}
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
	return nil
}

// WriteBackDirty writes dirty lines through the debug path and leaves them
// valid and clean.
func (c *Cache) WriteBackDirty() error {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && !block.IsLocked {
				if err := c.pokeLine(block); err != nil {
					return err
				}
				block.IsDirty = false
			}
		}
	}
	return nil
}

func (c *Cache) pokeLine(block *akitacache.Block) error {
	base := uint32(block.Tag)
	for i, w := range c.lines[c.blockIndex(block)] {
		if err := c.addrMap.Poke(base+uint32(i)*4, w, bus.FullMask); err != nil {
			return fmt.Errorf("cache: write back %08x: %w", base, err)
		}
	}
	return nil
}

// Reset invalidates all cache lines without writeback and forgets any
// outstanding miss.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.miss = nil
	c.uncached = nil
	c.failed = nil
	c.hasFilled = false
	c.stats = Statistics{}
}
