package engine

import (
	"hash/crc32"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TemplateRegistry is an in-memory cache of compiled templates with LRU
// eviction bounded by total image size and a TTL.
type TemplateRegistry struct {
	entries     map[string]*registryEntry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	ttl         time.Duration
	now         func() time.Time

	head *registryEntry
	tail *registryEntry

	hits      int64
	misses    int64
	evictions int64
}

type registryEntry struct {
	key       string
	source    string
	template  *CompiledTemplate
	createdAt time.Time
	size      int64

	prev *registryEntry
	next *registryEntry
}

// RegistryStats is a snapshot of registry counters.
type RegistryStats struct {
	Entries   int
	Size      int64
	MaxSize   int64
	Hits      int64
	Misses    int64
	Evictions int64
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// NewTemplateRegistry creates a registry. A ttl of zero disables expiry.
func NewTemplateRegistry(maxSize int64, ttl time.Duration) *TemplateRegistry {
	r := &TemplateRegistry{
		entries: make(map[string]*registryEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
	r.head = &registryEntry{}
	r.tail = &registryEntry{}
	r.head.next = r.tail
	r.tail.prev = r.head
	return r
}

// registryKey identifies generated source compiled with the given
// references and options.
func registryKey(src string, parts ...string) (string, string) {
	var b strings.Builder
	b.WriteString(src)
	for _, p := range parts {
		b.WriteByte(0)
		b.WriteString(p)
	}
	full := b.String()
	sum := crc32.Checksum([]byte(full), crcTable)
	return strconv.FormatUint(uint64(sum), 16) + "-" + strconv.Itoa(len(full)), full
}

// Get returns the template compiled from full, if present. A crc
// collision is treated as a miss because the stored text must match.
func (r *TemplateRegistry) Get(key, full string) (*CompiledTemplate, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, ok := r.entries[key]
	if !ok || entry.source != full {
		atomic.AddInt64(&r.misses, 1)
		return nil, false
	}
	if r.expired(entry) {
		r.remove(entry)
		atomic.AddInt64(&r.misses, 1)
		return nil, false
	}
	r.moveToFront(entry)
	atomic.AddInt64(&r.hits, 1)
	return entry.template, true
}

// Put stores ct. Templates larger than the whole registry are not kept.
func (r *TemplateRegistry) Put(key, full string, ct *CompiledTemplate) {
	size := int64(ct.assembly.Size())
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if existing, ok := r.entries[key]; ok {
		r.remove(existing)
	}
	if size > r.maxSize {
		return
	}
	for r.currentSize+size > r.maxSize && r.tail.prev != r.head {
		r.remove(r.tail.prev)
		atomic.AddInt64(&r.evictions, 1)
	}

	entry := &registryEntry{key: key, source: full, template: ct, createdAt: r.now(), size: size}
	r.entries[key] = entry
	r.currentSize += size
	r.addToFront(entry)
}

// Clear removes every entry and resets the counters.
func (r *TemplateRegistry) Clear() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries = make(map[string]*registryEntry)
	r.currentSize = 0
	r.head.next = r.tail
	r.tail.prev = r.head
	atomic.StoreInt64(&r.hits, 0)
	atomic.StoreInt64(&r.misses, 0)
	atomic.StoreInt64(&r.evictions, 0)
}

// Stats returns the registry counters.
func (r *TemplateRegistry) Stats() RegistryStats {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return RegistryStats{
		Entries:   len(r.entries),
		Size:      r.currentSize,
		MaxSize:   r.maxSize,
		Hits:      atomic.LoadInt64(&r.hits),
		Misses:    atomic.LoadInt64(&r.misses),
		Evictions: atomic.LoadInt64(&r.evictions),
	}
}

func (r *TemplateRegistry) expired(e *registryEntry) bool {
	return r.ttl > 0 && r.now().Sub(e.createdAt) > r.ttl
}

func (r *TemplateRegistry) remove(e *registryEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	delete(r.entries, e.key)
	r.currentSize -= e.size
}

func (r *TemplateRegistry) addToFront(e *registryEntry) {
	e.prev = r.head
	e.next = r.head.next
	r.head.next.prev = e
	r.head.next = e
}

func (r *TemplateRegistry) moveToFront(e *registryEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	r.addToFront(e)
}
