package saga

import (
	"container/list"
	"fmt"
)

// DBDedupChecker is the cold-path lookup against durable storage.
type DBDedupChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

// Deduper enforces exactly-once callback delivery with a two-tier lookup:
// an in-memory LRU for the hot path and durable storage for keys that have
// aged out of it. Not thread-safe; callers hold the engine lock.
type Deduper struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List

	db DBDedupChecker

	hitsLRU  int64
	hitsDB   int64
	dbErrors int64
}

// NewDeduper returns a Deduper keeping at most capacity keys in memory.
// db may be nil, leaving only the in-memory tier.
func NewDeduper(capacity int, db DBDedupChecker) *Deduper {
	return &Deduper{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		db:       db,
	}
}

// IsDuplicate reports whether the key has already been processed. A DB error
// is counted and treated as not-duplicate so storage trouble cannot stall
// callback processing; the saga phase check still rejects true replays.
func (d *Deduper) IsDuplicate(eventType, key string) bool {
	composite := compositeKey(eventType, key)
	if elem, ok := d.cache[composite]; ok {
		d.order.MoveToFront(elem)
		d.hitsLRU++
		return true
	}
	if d.db == nil {
		return false
	}
	dup, err := d.db.IsDuplicate(eventType, key)
	if err != nil {
		d.dbErrors++
		return false
	}
	if dup {
		d.hitsDB++
		d.insert(composite)
	}
	return dup
}

// MarkProcessed records a key after its callback has been applied.
func (d *Deduper) MarkProcessed(eventType, key string) {
	d.insert(compositeKey(eventType, key))
}

// Warm preloads recent keys, typically read back from storage on restart.
func (d *Deduper) Warm(composites []string) {
	for _, c := range composites {
		d.insert(c)
	}
}

// Stats returns hit and error counters for monitoring.
func (d *Deduper) Stats() (hitsLRU, hitsDB, dbErrors int64) {
	return d.hitsLRU, d.hitsDB, d.dbErrors
}

// Size returns the number of keys held in memory.
func (d *Deduper) Size() int {
	return d.order.Len()
}

func (d *Deduper) insert(composite string) {
	if elem, ok := d.cache[composite]; ok {
		d.order.MoveToFront(elem)
		return
	}
	d.cache[composite] = d.order.PushFront(composite)
	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.cache, oldest.Value.(string))
	}
}

func compositeKey(eventType, key string) string {
	return fmt.Sprintf("%s:%s", eventType, key)
}
